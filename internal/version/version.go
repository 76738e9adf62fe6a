package version

// Version is the current tag-weaver release. Overridden at build time with
// -ldflags "-X github.com/alvmarrod/tag-weaver/internal/version.Version=...".
var Version = "0.3.0"
