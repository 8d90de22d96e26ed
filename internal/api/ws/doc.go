// Package ws attaches WebSocket clients to running terminals.
//
// Each connection holds its own handle clone, so a terminal stays alive while
// anyone is attached. Output is sent as binary frames; control messages are
// JSON:
//
//	client: {"type":"input","data":"ls\n"}
//	client: {"type":"resize","cols":120,"rows":40}
//	client: {"type":"ping"}
//	server: {"type":"exit","exit_code":0}
//	server: {"type":"pong"} / {"type":"error","message":"..."}
package ws
