package directory

import (
	"context"
	"errors"
	"fmt"
)

// PasswordSync pushes password changes to members' directory accounts.
type PasswordSync struct {
	connect Connector
}

func NewPasswordSync(connect Connector) *PasswordSync {
	return &PasswordSync{connect: connect}
}

func (p *PasswordSync) SetPassword(ctx context.Context, username, password string) error {
	dir, err := p.connect(ctx)
	if err != nil {
		if !errors.Is(err, ErrConnect) {
			err = fmt.Errorf("%w: %v", ErrConnect, err)
		}
		return err
	}
	defer func() { _ = dir.Close() }()

	entry, err := dir.Lookup(ctx, KindUser, username)
	if err != nil {
		return err
	}

	return dir.SetPassword(ctx, entry.DN, password)
}
