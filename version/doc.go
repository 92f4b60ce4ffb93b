// Package version reports the build identity of the observer binary.
//
// Version and Commit are set at link time; without them the commit and
// dirty flag come from the VCS stamp the go tool embeds:
//
//	go build -ldflags "-X github.com/ETS-Next-Gen/writing-observer-sub002/version.Version=1.4.0" ./cmd/observer
package version
