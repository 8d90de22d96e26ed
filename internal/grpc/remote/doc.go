// Package remote carries terminal traffic between a guest project and the
// host that owns it, over gRPC.
//
// Messages are the plain structs of package protocol, encoded as JSON with
// bytedance/sonic through a registered gRPC codec, optionally compressed with
// zstd. The service descriptor is written by hand.
//
// Calls:
//   - OpenTerminal: start a terminal on the host, returns its id
//   - InputTerminal: send input bytes
//   - OutputTerminal: server stream of output, ending with an exit chunk
//   - CloseTerminal: release the host's terminal
//
// Example Usage:
//
//	client, err := remote.Dial("host:50061", remote.ClientOptions{Compression: "zstd"})
//	p := project.New(project.Options{ID: 42, Remote: client})
//
//	host := remote.NewHost(logger, metrics)
//	host.AddProject(local)
//	srv := remote.NewServer(host)
//	srv.Serve(lis)
package remote
