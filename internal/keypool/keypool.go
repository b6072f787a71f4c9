// Package keypool owns the sending credentials of each application: quota
// claims for the dispatcher and the daily usage reset.
package keypool

import (
	"errors"
	"fmt"

	"github.com/courierd/courier"
	"github.com/courierd/courier/internal/dao"
	"github.com/courierd/courier/tools"
	"github.com/sirupsen/logrus"
)

// ErrQuotaExhausted means no credential of the application has quota left
// today. The caller is expected to requeue, not drop, the job.
var ErrQuotaExhausted = errors.New("quota exhausted")

// Store is the slice of the DAO the pool needs.
type Store interface {
	ClaimKeyQuota(app, today string) (*courier.Credential, error)
	ReleaseKeyQuota(id int64) error
}

func New(lc *tools.Logger, store Store) *Pool {
	return &Pool{
		log:   lc.New("keypool"),
		store: store,
		locks: tools.NewKeyedMutex(),
	}
}

type Pool struct {
	log   *logrus.Logger
	store Store
	locks *tools.KeyedMutex
}

// Claim selects the eligible credential with the lowest usage ratio and
// reserves one quota unit in the same step. Selection and reservation being
// one unit is what keeps two concurrent sends from both riding the last
// unit of a credential. Claims are serialized per application so concurrent
// workers do not chew through candidate lists against each other.
func (p *Pool) Claim(app string) (*courier.Credential, error) {
	p.locks.Lock(app)
	defer p.locks.Unlock(app)

	key, err := p.store.ClaimKeyQuota(app, courier.Today())
	if errors.Is(err, dao.ErrNotFound) {
		return nil, fmt.Errorf("app %s: %w", app, ErrQuotaExhausted)
	}
	if err != nil {
		return nil, fmt.Errorf("could not claim key quota for app %s: %w", app, err)
	}

	p.log.WithFields(logrus.Fields{
		"app": app, "key": key.ID, "used": key.SentCount, "limit": key.LimitCount,
	}).Debug("claimed quota unit")
	return key, nil
}

// Release returns a reserved unit after a transport failure, so a failed
// send does not burn quota.
func (p *Pool) Release(keyID int64) {
	err := p.store.ReleaseKeyQuota(keyID)
	if err != nil {
		p.log.WithError(err).WithField("key", keyID).Error("could not release quota unit")
	}
}
