package worker

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pubgate/gateway/common/actors"
	"github.com/pubgate/gateway/common/cdn"
	"github.com/pubgate/gateway/common/clients"
	"github.com/pubgate/gateway/common/config"
	"github.com/pubgate/gateway/common/configstore"
	"github.com/pubgate/gateway/common/logger"
	"github.com/pubgate/gateway/common/models"
	"github.com/pubgate/gateway/common/queue"
	"github.com/pubgate/gateway/common/repository"
)

// fakeTaskStore keeps tasks in a map; its transactions mutate the map
// directly, which is close enough to row locking for handler tests.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
}

func newFakeTaskStore(tasks ...*models.Task) *fakeTaskStore {
	s := &fakeTaskStore{tasks: map[uuid.UUID]*models.Task{}}
	for _, task := range tasks {
		s.tasks[task.ID] = task
	}
	return s
}

func (s *fakeTaskStore) Begin(ctx context.Context) (repository.TaskTx, error) {
	return &fakeTaskTx{store: s}, nil
}

func (s *fakeTaskStore) state(id uuid.UUID) models.TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id].State
}

type fakeTaskTx struct {
	store *fakeTaskStore
}

func (tx *fakeTaskTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	task, ok := tx.store.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (tx *fakeTaskTx) SetState(ctx context.Context, id uuid.UUID, state models.TaskState) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	task, ok := tx.store.tasks[id]
	if !ok {
		return repository.ErrNotFound
	}
	task.State = state
	task.Updated = time.Now().UTC()
	return nil
}

func (tx *fakeTaskTx) Commit(ctx context.Context) error   { return nil }
func (tx *fakeTaskTx) Rollback(ctx context.Context) error { return nil }

// fakeConfigStore keeps the deployed config per env in memory
type fakeConfigStore struct {
	latest      map[string]*models.CDNConfig
	writes      []configstore.Record
	writeErr    error
	unprocessed []configstore.Record
}

func (s *fakeConfigStore) GetLatest(ctx context.Context, env string) (*models.CDNConfig, error) {
	return s.latest[env], nil
}

func (s *fakeConfigStore) BatchWrite(ctx context.Context, records []configstore.Record) ([]configstore.Record, error) {
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	if len(s.unprocessed) > 0 {
		return s.unprocessed, nil
	}
	s.writes = append(s.writes, records...)
	return nil, nil
}

type fakeLister struct {
	paths []string
}

func (f *fakeLister) ListPrefix(ctx context.Context, env, prefix string) ([]string, error) {
	var out []string
	for _, p := range f.paths {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakePurge struct {
	batches [][]string
	err     error
}

func (f *fakePurge) PurgeByURL(ctx context.Context, urls []string) ([]clients.PurgeResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, urls)
	return []clients.PurgeResponse{{HTTPStatus: 201, PurgeID: "test-purge"}}, nil
}

func testWorkerConfig() *config.Config {
	return &config.Config{
		Worker: config.WorkerConfig{
			Broker:        "memory",
			CompleteDelay: 2 * time.Minute,
			FlushDeadline: 10 * time.Minute,
		},
		CDN: config.CDNConfig{
			AutoindexFilename: ".__autoindex__",
			ListingFlush:      true,
		},
		Environments: []config.Environment{
			{
				Name:           "live",
				FlushEnabled:   true,
				CacheFlushURLs: []string{"https://cdn.example.com/"},
			},
		},
	}
}

func newTestWorker(tasks *fakeTaskStore, lister *fakeLister, store *fakeConfigStore, purge *fakePurge) (*Worker, *queue.MemoryBroker) {
	log := logger.NewWithWriter(io.Discard, "info", "json")
	broker := queue.NewMemoryBroker(log)

	w := New(testWorkerConfig(), tasks, lister, store, broker, log)
	w.newPurge = func(creds config.PurgeCredentials) cdn.PurgeAPI {
		return purge
	}
	return w, broker
}

func deployMessage(t *testing.T, taskID uuid.UUID, cfg *models.CDNConfig) *queue.Message {
	t.Helper()
	msg, err := queue.NewMessage(actors.DeployConfig, actors.DeployConfigArgs{
		Env:      "live",
		FromDate: time.Now().UTC(),
		Config:   cfg,
	})
	require.NoError(t, err)
	msg.ID = taskID
	return msg
}

func TestHandleDeployConfig_FirstDeploy(t *testing.T) {
	ctx := context.Background()
	taskID := uuid.New()
	tasks := newFakeTaskStore(&models.Task{ID: taskID, State: models.TaskNotStarted})
	store := &fakeConfigStore{latest: map[string]*models.CDNConfig{}}
	w, broker := newTestWorker(tasks, &fakeLister{}, store, &fakePurge{})

	cfg := &models.CDNConfig{
		ReleaseverAlias: []models.Alias{
			{Src: "/content/dist/rhel8/8", Dest: "/content/dist/rhel8/8.5"},
		},
	}

	require.NoError(t, w.HandleDeployConfig(ctx, deployMessage(t, taskID, cfg)))

	// The config was written exactly once.
	require.Len(t, store.writes, 1)
	assert.Equal(t, "live", store.writes[0].Env)
	decoded, err := configstore.DecodeConfig(store.writes[0].Body)
	require.NoError(t, err)
	assert.Equal(t, cfg, decoded)

	// One delayed completion message went out, with no paths to flush
	// since nothing was deployed before.
	pending, err := broker.Pending(ctx, actors.CompleteDeployConfigTask)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2*time.Minute, pending[0].Delay())

	var args actors.CompleteDeployArgs
	require.NoError(t, pending[0].DecodeKwargs(&args))
	assert.Equal(t, taskID, args.TaskID)
	assert.Empty(t, args.FlushPaths)

	// The task is not complete until the follow-up runs.
	assert.Equal(t, models.TaskInProgress, tasks.state(taskID))
}

func TestHandleDeployConfig_DiffProducesFlushPaths(t *testing.T) {
	ctx := context.Background()
	taskID := uuid.New()
	tasks := newFakeTaskStore(&models.Task{ID: taskID, State: models.TaskNotStarted})

	prev := &models.CDNConfig{
		ReleaseverAlias: []models.Alias{
			{Src: "/content/dist/rhel8/8", Dest: "/content/dist/rhel8/8.4"},
		},
	}
	next := &models.CDNConfig{
		ReleaseverAlias: []models.Alias{
			{Src: "/content/dist/rhel8/8", Dest: "/content/dist/rhel8/8.5"},
		},
	}

	store := &fakeConfigStore{latest: map[string]*models.CDNConfig{"live": prev}}
	lister := &fakeLister{paths: []string{
		"/content/dist/rhel8/8/x86_64/baseos/os/repodata/repomd.xml",
	}}
	w, broker := newTestWorker(tasks, lister, store, &fakePurge{})

	require.NoError(t, w.HandleDeployConfig(ctx, deployMessage(t, taskID, next)))

	pending, err := broker.Pending(ctx, actors.CompleteDeployConfigTask)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	var args actors.CompleteDeployArgs
	require.NoError(t, pending[0].DecodeKwargs(&args))
	assert.Equal(t, []string{
		"/content/dist/rhel8/8/x86_64/baseos/os/repodata/repomd.xml",
	}, args.FlushPaths)
}

func TestHandleDeployConfig_WriteFailure(t *testing.T) {
	ctx := context.Background()
	taskID := uuid.New()
	tasks := newFakeTaskStore(&models.Task{ID: taskID, State: models.TaskNotStarted})
	store := &fakeConfigStore{
		latest:   map[string]*models.CDNConfig{},
		writeErr: assert.AnError,
	}
	w, broker := newTestWorker(tasks, &fakeLister{}, store, &fakePurge{})

	require.NoError(t, w.HandleDeployConfig(ctx, deployMessage(t, taskID, &models.CDNConfig{})))

	// A failed write must fail the task and must not schedule
	// completion: completion would purge caches for a config that was
	// never published.
	assert.Equal(t, models.TaskFailed, tasks.state(taskID))
	pending, err := broker.Pending(ctx, actors.CompleteDeployConfigTask)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHandleDeployConfig_UnprocessedRecords(t *testing.T) {
	ctx := context.Background()
	taskID := uuid.New()
	tasks := newFakeTaskStore(&models.Task{ID: taskID, State: models.TaskNotStarted})
	store := &fakeConfigStore{
		latest:      map[string]*models.CDNConfig{},
		unprocessed: []configstore.Record{{Env: "live"}},
	}
	w, broker := newTestWorker(tasks, &fakeLister{}, store, &fakePurge{})

	require.NoError(t, w.HandleDeployConfig(ctx, deployMessage(t, taskID, &models.CDNConfig{})))

	assert.Equal(t, models.TaskFailed, tasks.state(taskID))
	pending, err := broker.Pending(ctx, actors.CompleteDeployConfigTask)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHandleDeployConfig_UnexpectedStateIsNoop(t *testing.T) {
	ctx := context.Background()
	taskID := uuid.New()
	tasks := newFakeTaskStore(&models.Task{ID: taskID, State: models.TaskComplete})
	store := &fakeConfigStore{latest: map[string]*models.CDNConfig{}}
	w, broker := newTestWorker(tasks, &fakeLister{}, store, &fakePurge{})

	// Redelivery of an already handled message: nothing happens.
	require.NoError(t, w.HandleDeployConfig(ctx, deployMessage(t, taskID, &models.CDNConfig{})))

	assert.Equal(t, models.TaskComplete, tasks.state(taskID))
	assert.Empty(t, store.writes)
	pending, err := broker.Pending(ctx, actors.CompleteDeployConfigTask)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHandleCompleteDeploy(t *testing.T) {
	ctx := context.Background()
	taskID := uuid.New()
	tasks := newFakeTaskStore(&models.Task{ID: taskID, State: models.TaskInProgress})
	purge := &fakePurge{}
	w, _ := newTestWorker(tasks, &fakeLister{}, &fakeConfigStore{}, purge)

	msg, err := queue.NewMessage(actors.CompleteDeployConfigTask, actors.CompleteDeployArgs{
		TaskID:     taskID,
		Env:        "live",
		FlushPaths: []string{"/content/dist/rhel8/8/x86_64/file.rpm"},
	})
	require.NoError(t, err)

	require.NoError(t, w.HandleCompleteDeploy(ctx, msg))

	assert.Equal(t, models.TaskComplete, tasks.state(taskID))
	require.Len(t, purge.batches, 1)
	assert.Contains(t, purge.batches[0],
		"https://cdn.example.com/content/dist/rhel8/8/x86_64/file.rpm")
}

func TestHandleCompleteDeploy_NoFlushPaths(t *testing.T) {
	ctx := context.Background()
	taskID := uuid.New()
	tasks := newFakeTaskStore(&models.Task{ID: taskID, State: models.TaskInProgress})
	purge := &fakePurge{}
	w, _ := newTestWorker(tasks, &fakeLister{}, &fakeConfigStore{}, purge)

	msg, err := queue.NewMessage(actors.CompleteDeployConfigTask, actors.CompleteDeployArgs{
		TaskID: taskID,
		Env:    "live",
	})
	require.NoError(t, err)

	require.NoError(t, w.HandleCompleteDeploy(ctx, msg))

	assert.Equal(t, models.TaskComplete, tasks.state(taskID))
	assert.Empty(t, purge.batches)
}

func TestHandleCompleteDeploy_UnexpectedStateIsNoop(t *testing.T) {
	ctx := context.Background()
	taskID := uuid.New()
	tasks := newFakeTaskStore(&models.Task{ID: taskID, State: models.TaskNotStarted})
	w, _ := newTestWorker(tasks, &fakeLister{}, &fakeConfigStore{}, &fakePurge{})

	msg, err := queue.NewMessage(actors.CompleteDeployConfigTask, actors.CompleteDeployArgs{
		TaskID: taskID,
		Env:    "live",
	})
	require.NoError(t, err)

	require.NoError(t, w.HandleCompleteDeploy(ctx, msg))

	// A completion message for a task never claimed must not complete it.
	assert.Equal(t, models.TaskNotStarted, tasks.state(taskID))
}

func TestHandleFlushCache(t *testing.T) {
	ctx := context.Background()
	taskID := uuid.New()
	deadline := time.Now().UTC().Add(10 * time.Minute)
	tasks := newFakeTaskStore(&models.Task{ID: taskID, State: models.TaskNotStarted, Deadline: &deadline})

	deployed := &models.CDNConfig{
		ReleaseverAlias: []models.Alias{
			{Src: "/content/dist/rhel8/8", Dest: "/content/dist/rhel8/8.5"},
		},
	}
	store := &fakeConfigStore{latest: map[string]*models.CDNConfig{"live": deployed}}
	purge := &fakePurge{}
	w, _ := newTestWorker(tasks, &fakeLister{}, store, purge)

	msg, err := queue.NewMessage(actors.FlushCDNCache, actors.FlushCacheArgs{
		Env:   "live",
		Paths: []string{"/content/dist/rhel8/8/file.rpm"},
	})
	require.NoError(t, err)
	msg.ID = taskID

	require.NoError(t, w.HandleFlushCache(ctx, msg))

	assert.Equal(t, models.TaskComplete, tasks.state(taskID))

	// Aliases from the deployed config expand the path to both sides.
	require.Len(t, purge.batches, 1)
	assert.Contains(t, purge.batches[0], "https://cdn.example.com/content/dist/rhel8/8/file.rpm")
	assert.Contains(t, purge.batches[0], "https://cdn.example.com/content/dist/rhel8/8.5/file.rpm")
}

func TestHandleFlushCache_DeadlineExceeded(t *testing.T) {
	ctx := context.Background()
	taskID := uuid.New()
	deadline := time.Now().UTC().Add(-time.Minute)
	tasks := newFakeTaskStore(&models.Task{ID: taskID, State: models.TaskNotStarted, Deadline: &deadline})
	purge := &fakePurge{}
	w, _ := newTestWorker(tasks, &fakeLister{}, &fakeConfigStore{}, purge)

	msg, err := queue.NewMessage(actors.FlushCDNCache, actors.FlushCacheArgs{
		Env:   "live",
		Paths: []string{"/content/file.rpm"},
	})
	require.NoError(t, err)
	msg.ID = taskID

	require.NoError(t, w.HandleFlushCache(ctx, msg))

	// A stale flush is worthless: abandon it, do not purge.
	assert.Equal(t, models.TaskFailed, tasks.state(taskID))
	assert.Empty(t, purge.batches)
}

func TestHandleFlushCache_UnknownEnvironment(t *testing.T) {
	ctx := context.Background()
	taskID := uuid.New()
	tasks := newFakeTaskStore(&models.Task{ID: taskID, State: models.TaskNotStarted})
	w, _ := newTestWorker(tasks, &fakeLister{}, &fakeConfigStore{}, &fakePurge{})

	msg, err := queue.NewMessage(actors.FlushCDNCache, actors.FlushCacheArgs{
		Env:   "nope",
		Paths: []string{"/content/file.rpm"},
	})
	require.NoError(t, err)
	msg.ID = taskID

	require.NoError(t, w.HandleFlushCache(ctx, msg))
	assert.Equal(t, models.TaskFailed, tasks.state(taskID))
}
