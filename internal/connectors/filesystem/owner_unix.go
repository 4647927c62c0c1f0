//go:build unix

package filesystem

import (
	"context"

	"golang.org/x/sys/unix"
)

func (r *Resource) ownerUID(ctx context.Context) (any, error) {
	p, err := r.Path(ctx)
	if err != nil {
		return nil, err
	}
	var st unix.Stat_t
	if err := unix.Stat(p, &st); err != nil {
		return nil, err
	}
	return int(st.Uid), nil
}
