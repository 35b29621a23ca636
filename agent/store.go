package agent

import (
	"context"
	"errors"
)

var errEmptyKey = errors.New("empty key")

// Store prefixes every key with a namespace before it reaches the Cache.
type Store[S any] struct {
	core      Cache[S]
	namespace string
}

func NewStore[S any](core Cache[S], namespace string) Store[S] {
	return Store[S]{
		core:      core,
		namespace: namespace,
	}
}

func (c Store[S]) key(key string) (string, error) {
	if key == "" {
		return "", errEmptyKey
	}
	return c.namespace + ":" + key, nil
}

func (c Store[S]) Set(ctx context.Context, key string, val S) error {
	k, err := c.key(key)
	if err != nil {
		return err
	}
	return c.core.Set(ctx, k, val)
}

func (c Store[S]) Get(ctx context.Context, key string) (S, bool, error) {
	k, err := c.key(key)
	if err != nil {
		var zero S
		return zero, false, err
	}
	return c.core.Get(ctx, k)
}

func (c Store[S]) Del(ctx context.Context, key string) error {
	k, err := c.key(key)
	if err != nil {
		return err
	}
	return c.core.Del(ctx, k)
}

func (c Store[S]) Exists(ctx context.Context, key string) (bool, error) {
	k, err := c.key(key)
	if err != nil {
		return false, err
	}
	return c.core.Exists(ctx, k)
}
