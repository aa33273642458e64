package config

// Version is the server binary version.
// Set at build time via: -ldflags "-X github.com/ernanint/notas-de-vidro/internal/config.Version=<tag>"
var Version = "dev"
