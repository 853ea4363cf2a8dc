package zookeeper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

// Locker serialises work on a key across processes using the ZooKeeper lock
// recipe: an ephemeral sequential node under <root>/<key>, lowest wins.
type Locker struct {
	log  *slog.Logger
	conn *zk.Conn
	root string
	acl  []zk.ACL
}

func Connect(log *slog.Logger, servers []string, session time.Duration, root string) (*Locker, error) {
	conn, events, err := zk.Connect(servers, session, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("zookeeper connect: %w", err)
	}
	go func() {
		for ev := range events {
			if ev.State == zk.StateExpired || ev.State == zk.StateDisconnected {
				log.Warn("zookeeper session state", "state", ev.State.String())
			}
		}
	}()
	return NewLocker(log, conn, root), nil
}

func NewLocker(log *slog.Logger, conn *zk.Conn, root string) *Locker {
	return &Locker{
		log:  log,
		conn: conn,
		root: strings.TrimRight(root, "/"),
		acl:  zk.WorldACL(zk.PermAll),
	}
}

func (l *Locker) path(key string) string {
	return l.root + "/" + url.PathEscape(key)
}

// Lock blocks until the key is held or ctx ends. The recipe itself cannot be
// interrupted, so a lock won after ctx ended is released in the background.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	lock := zk.NewLock(l.conn, l.path(key), l.acl)
	done := make(chan error, 1)
	go func() { done <- lock.Lock() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("zookeeper lock %s: %w", key, err)
		}
		return func() { l.unlock(lock, key) }, nil
	case <-ctx.Done():
		go func() {
			if err := <-done; err == nil {
				l.unlock(lock, key)
			}
		}()
		return nil, ctx.Err()
	}
}

func (l *Locker) unlock(lock *zk.Lock, key string) {
	if err := lock.Unlock(); err != nil && err != zk.ErrNotLocked {
		l.log.Error("zookeeper unlock failed", "key", key, "err", err)
	}
}

func (l *Locker) Close() {
	l.conn.Close()
}
