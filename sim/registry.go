package sim

import (
	"fmt"

	"github.com/xycloo/zephyr-go/host"
	"github.com/xycloo/zephyr-go/store"
	"github.com/xycloo/zephyr-go/store/kvstore"
	"github.com/xycloo/zephyr-go/store/sqlstore"
)

func init() {
	if err := host.Register(host.KindSim, func(params map[string]any) (host.Backend, error) {
		return NewFromParams(params)
	}); err != nil {
		panic(err)
	}
}

// NewFromParams builds a backend from registry parameters:
//
//	store      a store.Store to run against, owned by the caller
//	db_path    opens a sqlite store at the path
//	kv_dir     opens a goleveldb store under the directory
//	read_only  rejects storage writes and deletes
//
// With none of the store parameters the backend uses a private memory store.
func NewFromParams(params map[string]any) (*Backend, error) {
	var opts []Option
	if ro, ok := params["read_only"].(bool); ok && ro {
		opts = append(opts, WithReadOnly())
	}

	var (
		s    store.Store
		owns bool
		err  error
	)
	switch {
	case params["store"] != nil:
		var ok bool
		if s, ok = params["store"].(store.Store); !ok {
			return nil, fmt.Errorf("parameter store has type %T", params["store"])
		}
	case params["db_path"] != nil:
		s, err = sqlstore.NewFromParams(params)
		owns = true
	case params["kv_dir"] != nil:
		s, err = kvstore.NewFromParams(params)
		owns = true
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if s != nil {
		opts = append(opts, WithStore(s))
	}

	b, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if owns {
		b.ownsStore = true
	}
	return b, nil
}
