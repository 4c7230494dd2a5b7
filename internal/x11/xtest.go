package x11

import (
	"fmt"

	"github.com/jezek/xgb/xtest"
)

// XTest wraps the XTEST extension, used here only to confirm the X
// server distinguishes real from synthetic input (XTEST GetVersion);
// DPMS's ForceOff/ForceOn calls are synthetic at the protocol level and
// must not be mistaken for user activity by the inactivity counter.
type XTest struct {
	source *Source
}

// NewXTest initializes the XTEST extension on source's connection.
func NewXTest(source *Source) (*XTest, error) {
	if err := xtest.Init(source.conn); err != nil {
		return nil, fmt.Errorf("x11: init XTEST: %w", err)
	}
	if _, err := xtest.GetVersion(source.conn, 2, 2).Reply(); err != nil {
		return nil, fmt.Errorf("x11: XTEST GetVersion: %w", err)
	}
	return &XTest{source: source}, nil
}
