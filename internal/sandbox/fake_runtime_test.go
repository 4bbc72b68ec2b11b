package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// fakeRuntime is an in-memory Runtime for pool and manager tests.
type fakeRuntime struct {
	mu         sync.Mutex
	nextID     int
	containers map[string]ContainerSpec

	createErr error
	execFn    func(containerID string, spec ExecSpec) (ExecResult, error)

	creates  int
	destroys int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{containers: make(map[string]ContainerSpec)}
}

func (f *fakeRuntime) Create(_ context.Context, spec ContainerSpec) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return Handle{}, f.createErr
	}
	f.nextID++
	f.creates++
	id := fmt.Sprintf("ctr-%d", f.nextID)
	f.containers[id] = spec
	return Handle{ID: id}, nil
}

func (f *fakeRuntime) Exec(_ context.Context, containerID string, spec ExecSpec) (ExecResult, error) {
	f.mu.Lock()
	_, exists := f.containers[containerID]
	fn := f.execFn
	f.mu.Unlock()
	if !exists {
		return ExecResult{}, fmt.Errorf("no such container %s", containerID)
	}
	if fn != nil {
		return fn(containerID, spec)
	}
	return ExecResult{ExitCode: 0}, nil
}

func (f *fakeRuntime) Destroy(_ context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, containerID)
	f.destroys++
	return nil
}

func (f *fakeRuntime) ListLabeled(_ context.Context, label string) ([]string, error) {
	key, value, _ := strings.Cut(label, "=")
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, spec := range f.containers {
		if spec.Labels[key] == value {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeRuntime) Close() error { return nil }

func (f *fakeRuntime) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.containers)
}
