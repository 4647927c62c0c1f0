package driven

import "context"

// CommandRunner executes external programs.
// Implementations bound each call with a timeout, kill the whole process
// group when it expires and give the child its own temporary directory.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}
