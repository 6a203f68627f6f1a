package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vectorpart/internal/manifest"
	"vectorpart/internal/registry"
	"vectorpart/internal/resume"
	"vectorpart/internal/vectorstore"
)

type fakeCollection struct {
	name       string
	docs       map[string]string
	metas      map[string]map[string]any
	upsertErrs []error // consumed one per Upsert call, nil entries mean success
}

func newFakeCollection(name string) *fakeCollection {
	return &fakeCollection{name: name, docs: map[string]string{}, metas: map[string]map[string]any{}}
}

func (c *fakeCollection) Name() string { return c.name }

func (c *fakeCollection) Upsert(ctx context.Context, ids []string, documents []string, metadatas []map[string]any) error {
	if len(c.upsertErrs) > 0 {
		err := c.upsertErrs[0]
		c.upsertErrs = c.upsertErrs[1:]
		if err != nil {
			return err
		}
	}
	for i, id := range ids {
		c.docs[id] = documents[i]
		c.metas[id] = metadatas[i]
	}
	return nil
}

func (c *fakeCollection) Get(ctx context.Context, req vectorstore.GetRequest) (vectorstore.GetResult, error) {
	var res vectorstore.GetResult
	for _, id := range req.IDs {
		if _, ok := c.docs[id]; ok {
			res.IDs = append(res.IDs, id)
		}
	}
	return res, nil
}

func (c *fakeCollection) Query(ctx context.Context, req vectorstore.QueryRequest) (vectorstore.QueryResult, error) {
	return vectorstore.QueryResult{}, nil
}

func (c *fakeCollection) Count(ctx context.Context) (int, error) { return len(c.docs), nil }

type fakeClient struct {
	collections map[string]*fakeCollection
}

func newFakeClient() *fakeClient { return &fakeClient{collections: map[string]*fakeCollection{}} }

func (c *fakeClient) Collection(ctx context.Context, name string, createIfAbsent bool) (vectorstore.Collection, error) {
	if col, ok := c.collections[name]; ok {
		return col, nil
	}
	col := newFakeCollection(name)
	c.collections[name] = col
	return col, nil
}

func (c *fakeClient) Close() error { return nil }

type staticRegistryForTest struct {
	rt *registry.RecordType
}

func (r *staticRegistryForTest) RecordType(name string) (*registry.RecordType, error) { return r.rt, nil }
func (r *staticRegistryForTest) RecordTypes() []string                                { return []string{r.rt.Name} }

type passthroughSchema struct{}

func (passthroughSchema) Fields() map[string]registry.FieldSchema { return nil }
func (passthroughSchema) Validate(record map[string]any) (map[string]any, error) {
	return record, nil
}

func writePartitionCSV(t *testing.T, root, partition, recordType string, header []string, rows [][]string) string {
	t.Helper()
	dir := filepath.Join(root, partition)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, recordType+".csv")
	var sb strings.Builder
	sb.WriteString(strings.Join(header, ",") + "\n")
	for _, row := range rows {
		sb.WriteString(strings.Join(row, ",") + "\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func testConfig(t *testing.T, root, stateDir string, client *fakeClient) Config {
	return Config{
		PartitionRoot: root,
		StateDir:      stateDir,
		Registry: &staticRegistryForTest{rt: &registry.RecordType{
			Name:           "widget",
			Schema:         passthroughSchema{},
			SemanticFields: []string{"description"},
			KeywordFields:  []string{"sku"},
		}},
		Client: client,
		Policy: DefaultPolicy(),
	}
}

func TestRunIndexesEveryRowOnce(t *testing.T) {
	root := t.TempDir()
	stateDir := t.TempDir()
	writePartitionCSV(t, root, "partition_00000", "widget", []string{"sku", "description"}, [][]string{
		{"SKU1", "a red widget"},
		{"SKU2", "a blue widget"},
	})

	m := manifest.Empty()
	m.Partitions = append(m.Partitions, manifest.PartitionEntry{
		Name:   "partition_00000",
		Models: map[string]manifest.ModelInfo{"widget": {SchemaSignature: "sig1", SchemaVersion: 1, Rows: 2}},
	})

	client := newFakeClient()
	cfg := testConfig(t, root, stateDir, client)

	result, err := Run(context.Background(), cfg, m)
	require.NoError(t, err)
	require.Equal(t, 2, result.DocumentsIndexed)
	require.Empty(t, result.Skipped)

	col := client.collections[CollectionName("partition_00000", "widget")]
	require.Len(t, col.docs, 2)

	doc, err := resume.Load(filepath.Join(root, "partition_00000", resume.FileName("partition_00000")))
	require.NoError(t, err)
	state := doc["widget"]
	require.True(t, state.Complete)
	require.Equal(t, 2, state.DocumentsIndexed)
}

func TestRunSkipsCompleteUnchangedRecordType(t *testing.T) {
	root := t.TempDir()
	stateDir := t.TempDir()
	csvPath := writePartitionCSV(t, root, "partition_00000", "widget", []string{"sku", "description"}, [][]string{
		{"SKU1", "a red widget"},
	})

	sig, err := resume.StatSignature(csvPath)
	require.NoError(t, err)
	doc := resume.Document{"widget": resume.State{Started: true, Complete: true, SourceSignature: sig, DocumentsIndexed: 1}}
	require.NoError(t, resume.Save(filepath.Join(root, "partition_00000", resume.FileName("partition_00000")), doc))

	m := manifest.Empty()
	m.Partitions = append(m.Partitions, manifest.PartitionEntry{
		Name:   "partition_00000",
		Models: map[string]manifest.ModelInfo{"widget": {SchemaSignature: "sig1", SchemaVersion: 1, Rows: 1}},
	})

	client := newFakeClient()
	cfg := testConfig(t, root, stateDir, client)

	result, err := Run(context.Background(), cfg, m)
	require.NoError(t, err)
	require.Equal(t, 0, result.DocumentsIndexed)
	require.Equal(t, []string{"partition_00000/widget"}, result.Skipped)
}

func TestRunDedupesAlreadyIndexedDocuments(t *testing.T) {
	root := t.TempDir()
	stateDir := t.TempDir()
	writePartitionCSV(t, root, "partition_00000", "widget", []string{"sku", "description"}, [][]string{
		{"SKU1", "a red widget"},
		{"SKU2", "a blue widget"},
	})

	m := manifest.Empty()
	m.Partitions = append(m.Partitions, manifest.PartitionEntry{
		Name:   "partition_00000",
		Models: map[string]manifest.ModelInfo{"widget": {SchemaSignature: "sig1", SchemaVersion: 1, Rows: 2}},
	})

	client := newFakeClient()
	cfg := testConfig(t, root, stateDir, client)

	_, err := Run(context.Background(), cfg, m)
	require.NoError(t, err)

	// Clear completion so the second run re-walks the same rows, simulating
	// a resume after the state file was lost but the collection wasn't.
	statePath := filepath.Join(root, "partition_00000", resume.FileName("partition_00000"))
	require.NoError(t, resume.Save(statePath, resume.Document{}))

	result, err := Run(context.Background(), cfg, m)
	require.NoError(t, err)
	require.Equal(t, 0, result.DocumentsIndexed)

	col := client.collections[CollectionName("partition_00000", "widget")]
	require.Len(t, col.docs, 2)
}

func TestRunRetriesPastDuplicateIDError(t *testing.T) {
	root := t.TempDir()
	stateDir := t.TempDir()
	writePartitionCSV(t, root, "partition_00000", "widget", []string{"sku", "description"}, [][]string{
		{"SKU1", "a red widget"},
		{"SKU2", "a blue widget"},
	})

	m := manifest.Empty()
	m.Partitions = append(m.Partitions, manifest.PartitionEntry{
		Name:   "partition_00000",
		Models: map[string]manifest.ModelInfo{"widget": {SchemaSignature: "sig1", SchemaVersion: 1, Rows: 2}},
	})

	client := newFakeClient()
	cfg := testConfig(t, root, stateDir, client)

	col := newFakeCollection(CollectionName("partition_00000", "widget"))
	client.collections[col.name] = col

	firstID := digestIDForRow(t, cfg, "SKU1", "a red widget")
	col.upsertErrs = []error{&vectorstore.DuplicateIDError{IDs: []string{firstID}}}

	result, err := Run(context.Background(), cfg, m)
	require.NoError(t, err)
	require.Equal(t, 1, result.DocumentsIndexed)
	require.Len(t, col.docs, 1)
}

func TestRunDropsOversizeDocumentAndContinues(t *testing.T) {
	root := t.TempDir()
	stateDir := t.TempDir()
	writePartitionCSV(t, root, "partition_00000", "widget", []string{"sku", "description"}, [][]string{
		{"SKU1", strings.Repeat("a", 2000)}, // tokenises well past a tiny MaxTokensPerRequest
		{"SKU2", "a blue widget"},
	})

	m := manifest.Empty()
	m.Partitions = append(m.Partitions, manifest.PartitionEntry{
		Name:   "partition_00000",
		Models: map[string]manifest.ModelInfo{"widget": {SchemaSignature: "sig1", SchemaVersion: 1, Rows: 2}},
	})

	client := newFakeClient()
	cfg := testConfig(t, root, stateDir, client)
	cfg.Policy.MaxTokensPerRequest = 40
	logger := &recordingLogger{}
	cfg.Logger = logger

	result, err := Run(context.Background(), cfg, m)
	require.NoError(t, err)
	require.Equal(t, 1, result.DocumentsIndexed)
	require.NotEmpty(t, logger.messages)

	col := client.collections[CollectionName("partition_00000", "widget")]
	require.Len(t, col.docs, 1)

	doc, err := resume.Load(filepath.Join(root, "partition_00000", resume.FileName("partition_00000")))
	require.NoError(t, err)
	require.True(t, doc["widget"].Complete)
}

func digestIDForRow(t *testing.T, cfg Config, sku, description string) string {
	t.Helper()
	rows := [][]string{{sku, description}}
	root := t.TempDir()
	writePartitionCSV(t, root, "p", "widget", []string{"sku", "description"}, rows)
	sourceCfg := cfg
	sourceCfg.PartitionRoot = root
	sourceCfg.StateDir = t.TempDir()
	client := newFakeClient()
	sourceCfg.Client = client
	m := manifest.Empty()
	m.Partitions = append(m.Partitions, manifest.PartitionEntry{Name: "p", Models: map[string]manifest.ModelInfo{"widget": {SchemaVersion: 1}}})
	_, err := Run(context.Background(), sourceCfg, m)
	require.NoError(t, err)
	for id := range client.collections[CollectionName("p", "widget")].docs {
		return id
	}
	t.Fatal("no document indexed")
	return ""
}
