package httpd

import "context"

// Echo is the literal reference handler: every byte slice Recv
// returns is sent back verbatim until the peer closes or an error
// occurs.
func Echo(conn ClientConnection) {
	defer conn.Close()
	ctx := context.Background()
	for {
		data, err := conn.Recv(ctx)
		if err != nil {
			return
		}
		if err := conn.Send(ctx, data); err != nil {
			return
		}
	}
}
