// Package logx provides a small zerolog-backed logger used by components
// that must not depend on the slog logging service (config, storage).
package logx
