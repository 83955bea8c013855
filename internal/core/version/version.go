package version

// Version is overridden at build time via -ldflags "-X github.com/dyget/dyget/internal/core/version.Version=..."
var Version = "0.3.0"
