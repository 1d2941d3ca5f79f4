package internal

// Version is the release of lobby-bridge, reported by --version.
var Version = "1.0.0"
