// Package session is the application-facing post office client.
//
// A Client composes a transport.Connection, an envelope codec and a
// heartbeat.Scheduler:
//
//	cfg := session.DefaultConfig()
//	cfg.Params = transport.Params{
//	    Endpoint:    "ws://localhost:7502/",
//	    Auth:        transport.AuthQuery,
//	    Credentials: transport.Credentials{Token: token, ClientID: "js-client-001"},
//	}
//	c, _ := session.New(cfg)
//	c.OnMessage(func(env wire.Envelope) { fmt.Println(env) })
//	c.OnClose(func() { fmt.Println("closed") })
//	if err := c.Open(ctx); err != nil { ... }
//	c.SendEnvelope(env)
//	c.Close()
//
// Callbacks run on the connection's dispatcher goroutine, one at a time.
// OnOpen fires once before any OnMessage; OnClose fires once when the
// connection reaches Closed, after any OnError. Frames that fail to decode
// are reported through OnError and the session stays open.
package session
