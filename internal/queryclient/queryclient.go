// Package queryclient implements the fan-out query client: one connection
// to the vector store, a process-local collection handle cache, and
// concurrent per-collection query/get/count with fail-isolated gathering
// and client-side distance merge.
package queryclient

import (
	"context"
	"sort"
	"sync"

	"vectorpart/internal/errs"
	"vectorpart/internal/queryconfig"
	"vectorpart/internal/vectorstore"
)

// Logger is the minimal warning sink the client uses for per-collection
// failures and unknown record types; satisfied by *zap.SugaredLogger.
// A nil Logger is valid and discards everything.
type Logger interface {
	Warnf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warnf(string, ...any) {}

// State is the client's connection lifecycle stage.
type State int

const (
	Uninitialised State = iota
	Connected
	Closed
)

// Client is the fan-out query client. The zero value is Uninitialised;
// construct with New.
type Client struct {
	vs     vectorstore.Client
	logger Logger

	mu     sync.Mutex
	state  State
	config *queryconfig.Config
	handles map[string]vectorstore.Collection
}

// New constructs an Uninitialised client over vs. A nil logger is replaced
// with a no-op sink.
func New(vs vectorstore.Client, logger Logger) *Client {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Client{vs: vs, logger: logger, handles: map[string]vectorstore.Collection{}}
}

// Connect loads the query config from partitionRoot once and transitions
// to Connected. The config is treated as immutable for the client's
// lifetime; call Connect again (after Close) to pick up changes.
func (c *Client) Connect(partitionRoot string) error {
	cfg, err := queryconfig.Build(partitionRoot)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
	c.state = Connected
	return nil
}

// Close transitions to Closed and closes the underlying vector-store
// client.
func (c *Client) Close() error {
	c.mu.Lock()
	c.state = Closed
	c.mu.Unlock()
	return c.vs.Close()
}

func (c *Client) requireConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return errs.New(errs.NotConnected, nil)
	}
	return nil
}

// collection returns a cached handle for name, opening and caching one on
// first use. Concurrent first-uses may both open a handle; both calls
// resolve to the same logical collection, so last-write-wins on the cache
// is fine — re-registration is idempotent.
func (c *Client) collection(ctx context.Context, name string) (vectorstore.Collection, error) {
	c.mu.Lock()
	if col, ok := c.handles[name]; ok {
		c.mu.Unlock()
		return col, nil
	}
	c.mu.Unlock()

	col, err := c.vs.Collection(ctx, name, false)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.handles[name]; ok {
		col = existing
	} else {
		c.handles[name] = col
	}
	c.mu.Unlock()
	return col, nil
}

// resolveCollections returns the sorted, deduplicated set of collections
// relevant to models: every collection in the query config when models is
// empty, otherwise the union of each named record type's collections.
// Names not present in the query config are logged and ignored.
func (c *Client) resolveCollections(models []string) []string {
	c.mu.Lock()
	cfg := c.config
	c.mu.Unlock()

	set := map[string]struct{}{}
	if len(models) == 0 {
		for name := range cfg.CollectionRecordTypes {
			set[name] = struct{}{}
		}
	} else {
		for _, m := range models {
			entry, ok := cfg.RecordTypes[m]
			if !ok {
				c.logger.Warnf("queryclient: unknown record type %q ignored", m)
				continue
			}
			for _, col := range entry.Collections {
				set[col] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
