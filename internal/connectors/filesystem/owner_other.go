//go:build !unix

package filesystem

import "context"

func (r *Resource) ownerUID(context.Context) (any, error) {
	return nil, nil
}
