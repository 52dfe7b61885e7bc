// Package docker provides Docker Engine API wrappers used to run the
// training launch inside a container.
//
// GPU training hosts often run the training checkout inside a long-lived
// container rather than directly on the machine. This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Locating the training container by name or by the
//     speech-enhancement.role=trainer label
//   - Running launch step commands in that container through the exec API
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
