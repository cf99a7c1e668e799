package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ErrNotMember is returned when the user has no membership in the organization.
var ErrNotMember = errors.New("user is not a member of this organization")

// Directory reads the member and role rows a session is built from.
// Implementations return ErrNotMember when no membership exists.
type Directory interface {
	LoadSnapshot(ctx context.Context, orgID, userID uuid.UUID) (*Snapshot, error)
}

// DefaultLoadTimeout bounds a shared directory read.
const DefaultLoadTimeout = 10 * time.Second

// Loader builds sessions from a Directory. Concurrent loads for the same
// organization and user share one read; nothing is cached between calls.
// The shared read is not cancelled when one of the waiting callers goes away.
type Loader struct {
	dir      Directory
	unlinked UnlinkedPolicy
	timeout  time.Duration
	group    singleflight.Group
}

func NewLoader(dir Directory, unlinked UnlinkedPolicy) *Loader {
	return &Loader{dir: dir, unlinked: unlinked, timeout: DefaultLoadTimeout}
}

// Load returns the session for userID in orgID.
func (l *Loader) Load(ctx context.Context, orgID, userID uuid.UUID) (*Session, error) {
	key := orgID.String() + "/" + userID.String()

	ch := l.group.DoChan(key, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		snap, err := l.dir.LoadSnapshot(readCtx, orgID, userID)
		if err != nil {
			return nil, err
		}
		return NewSession(*snap, l.unlinked), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, ErrNotMember) {
				return nil, ErrNotMember
			}
			return nil, fmt.Errorf("failed to load session: %w", res.Err)
		}
		return res.Val.(*Session), nil
	}
}
