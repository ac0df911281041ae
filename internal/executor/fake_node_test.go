// SPDX-License-Identifier: MPL-2.0

package executor

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/invowk/pystep/internal/node"
)

// fakeNode keeps files in memory and delegates Launch to a hook.
type fakeNode struct {
	mu        sync.Mutex
	files     map[string]string
	seq       int
	env       []string
	envErr    error
	writeErr  error
	deleteErr error
	launch    func(ctx context.Context, spec node.LaunchSpec) (int, error)

	launches       []node.LaunchSpec
	existedAtStart bool
	deletes        int
}

func newFakeNode(exitCode int) *fakeNode {
	return &fakeNode{
		files: make(map[string]string),
		env:   []string{"PATH=/usr/bin:/bin", "HOME=/home/ci"},
		launch: func(context.Context, node.LaunchSpec) (int, error) {
			return exitCode, nil
		},
	}
}

func (n *fakeNode) Name() string                 { return "fake" }
func (n *fakeNode) OS() node.OS                  { return node.OSUnix }
func (n *fakeNode) Root() string                 { return "/work" }
func (n *fakeNode) Online(context.Context) error { return nil }

func (n *fakeNode) Environment(context.Context) ([]string, error) {
	return n.env, n.envErr
}

func (n *fakeNode) WriteTempFile(ctx context.Context, dir, prefix, ext, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n.writeErr != nil {
		return "", n.writeErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	p := path.Join(dir, fmt.Sprintf("%s%d%s", prefix, n.seq, ext))
	n.files[p] = content
	return p, nil
}

func (n *fakeNode) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deletes++
	if n.deleteErr != nil {
		return n.deleteErr
	}
	if _, ok := n.files[p]; !ok {
		return errors.New("no such file")
	}
	delete(n.files, p)
	return nil
}

func (n *fakeNode) Launch(ctx context.Context, spec node.LaunchSpec) (int, error) {
	n.mu.Lock()
	n.launches = append(n.launches, spec)
	_, n.existedAtStart = n.files[spec.Argv[len(spec.Argv)-1]]
	n.mu.Unlock()
	return n.launch(ctx, spec)
}

func (n *fakeNode) fileCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.files)
}

func (n *fakeNode) content(p string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.files[p]
	return c, ok
}
