// Package mocks provides an in-memory document service for tests.
package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dl-alexandre/docsync/internal/remote"
	"github.com/dl-alexandre/docsync/internal/sync/integrity"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
)

// Op names a Service method for fault injection and call counting
type Op string

const (
	OpListRoots    Op = "listRootFolders"
	OpListChildren Op = "listChildren"
	OpGetDetail    Op = "getDetail"
	OpDownload     Op = "download"
	OpUpload       Op = "upload"
	OpCreateFolder Op = "createFolder"
	OpDelete       Op = "delete"
)

// RootID is the id of the folder every Service starts with
const RootID = "root"

var (
	// FolderPermissions grants every folder capability
	FolderPermissions = []string{types.CapListFolderContent, types.CapCreateDocument, types.CapDeleteDocument}
	// FilePermissions grants every file capability
	FilePermissions = []string{types.CapDownloadDocument, types.CapEditDocumentContent, types.CapDeleteDocument}
)

type item struct {
	node    types.RemoteNode
	content []byte
}

type fault struct {
	err   error
	times int
}

// Service is an in-memory remote.Service. Checksums are computed with the
// validator it was built with and versions increase on every write.
type Service struct {
	mu        sync.Mutex
	validator *integrity.Validator
	items     map[string]*item
	nextID    int
	now       time.Time
	faults    map[Op]*fault
	corrupt   int
	calls     map[Op]int
	token     string
	tokens    []string
	onCall    func(op Op)
}

var _ remote.Service = (*Service)(nil)

// NewService creates a service holding a single root folder
func NewService(validator *integrity.Validator) *Service {
	s := &Service{
		validator: validator,
		items:     make(map[string]*item),
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		faults:    make(map[Op]*fault),
		calls:     make(map[Op]int),
	}
	s.items[RootID] = &item{node: types.RemoteNode{
		ID:          RootID,
		Name:        "root",
		Kind:        types.KindFolder,
		Version:     "1",
		Permissions: FolderPermissions,
		UpdatedAt:   s.now,
	}}
	return s
}

// RequireToken makes every call fail as unauthorized unless it carries token
func (s *Service) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Tokens returns the tokens seen so far, in call order
func (s *Service) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// FailNext makes the next times calls of op fail with err
func (s *Service) FailNext(op Op, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{err: err, times: times}
}

// CorruptNextDownloads flips a byte in the next n downloaded streams
func (s *Service) CorruptNextDownloads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrupt = n
}

// OnCall registers a hook run (without the lock held) before every call
func (s *Service) OnCall(fn func(op Op)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCall = fn
}

// Calls returns how often op was invoked
func (s *Service) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// AddFolder creates a folder under parentID. With no perms the folder gets
// FolderPermissions.
func (s *Service) AddFolder(parentID, name string, perms ...string) types.RemoteNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(perms) == 0 {
		perms = FolderPermissions
	}
	return s.addLocked(parentID, name, types.KindFolder, nil, perms)
}

// AddFile creates a file under parentID. With no perms the file gets
// FilePermissions.
func (s *Service) AddFile(parentID, name string, content []byte, perms ...string) types.RemoteNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(perms) == 0 {
		perms = FilePermissions
	}
	return s.addLocked(parentID, name, types.KindFile, content, perms)
}

func (s *Service) addLocked(parentID, name string, kind types.NodeKind, content []byte, perms []string) types.RemoteNode {
	s.nextID++
	s.now = s.now.Add(time.Second)
	node := types.RemoteNode{
		ID:          fmt.Sprintf("node-%d", s.nextID),
		Name:        name,
		ParentID:    parentID,
		Kind:        kind,
		Version:     "1",
		Permissions: append([]string(nil), perms...),
		UpdatedAt:   s.now,
	}
	it := &item{node: node}
	if kind == types.KindFile {
		it.content = append([]byte(nil), content...)
		it.node.Size = int64(len(content))
		it.node.Checksum = s.validator.ComputeBytes(content)
	}
	s.items[node.ID] = it
	return it.node
}

// SetContent replaces a file's content and bumps its version
func (s *Service) SetContent(id string, content []byte) types.RemoteNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.items[id]
	s.writeLocked(it, content)
	return it.node
}

func (s *Service) writeLocked(it *item, content []byte) {
	s.now = s.now.Add(time.Second)
	v, _ := strconv.Atoi(it.node.Version)
	it.content = append([]byte(nil), content...)
	it.node.Size = int64(len(content))
	it.node.Checksum = s.validator.ComputeBytes(content)
	it.node.Version = strconv.Itoa(v + 1)
	it.node.UpdatedAt = s.now
}

// SetPermissions replaces a node's capability set
func (s *Service) SetPermissions(id string, perms ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id].node.Permissions = append([]string(nil), perms...)
}

// Remove deletes a node and its descendants without going through Delete
func (s *Service) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Service) removeLocked(id string) {
	for childID, it := range s.items {
		if it.node.ParentID == id {
			s.removeLocked(childID)
		}
	}
	delete(s.items, id)
}

// Node returns a node by id
func (s *Service) Node(id string) (types.RemoteNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return types.RemoteNode{}, false
	}
	return it.node, true
}

// Content returns a file's bytes
func (s *Service) Content(id string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[id]; ok {
		return append([]byte(nil), it.content...)
	}
	return nil
}

// Find returns the child of parentID called name
func (s *Service) Find(parentID, name string) (types.RemoteNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.findLocked(parentID, name)
	if it == nil {
		return types.RemoteNode{}, false
	}
	return it.node, true
}

func (s *Service) findLocked(parentID, name string) *item {
	for _, it := range s.items {
		if it.node.ParentID == parentID && it.node.Name == name {
			return it
		}
	}
	return nil
}

func (s *Service) begin(op Op, token string) error {
	s.mu.Lock()
	hook := s.onCall
	s.mu.Unlock()
	if hook != nil {
		hook(op)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	s.tokens = append(s.tokens, token)
	if s.token != "" && token != s.token {
		return Unauthorized()
	}
	if f := s.faults[op]; f != nil && f.times > 0 {
		f.times--
		return f.err
	}
	return nil
}

func (s *Service) ChecksumAlgorithm() string {
	return s.validator.Algorithm()
}

func (s *Service) ListRootFolders(ctx context.Context, token string) ([]types.RemoteNode, error) {
	if err := s.begin(OpListRoots, token); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var nodes []types.RemoteNode
	for _, it := range s.items {
		if it.node.ParentID == RootID && it.node.IsFolder() {
			nodes = append(nodes, it.node)
		}
	}
	sortNodes(nodes)
	return nodes, nil
}

func (s *Service) ListChildren(ctx context.Context, token, folderID string) ([]types.RemoteNode, error) {
	if err := s.begin(OpListChildren, token); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[folderID]; !ok {
		return nil, NotFound(folderID)
	}
	var nodes []types.RemoteNode
	for _, it := range s.items {
		if it.node.ParentID == folderID {
			nodes = append(nodes, it.node)
		}
	}
	sortNodes(nodes)
	return nodes, nil
}

func (s *Service) GetDetail(ctx context.Context, token, nodeID string) (types.RemoteNode, error) {
	if err := s.begin(OpGetDetail, token); err != nil {
		return types.RemoteNode{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[nodeID]
	if !ok {
		return types.RemoteNode{}, NotFound(nodeID)
	}
	return it.node, nil
}

func (s *Service) Download(ctx context.Context, token, fileID string) (io.ReadCloser, error) {
	if err := s.begin(OpDownload, token); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[fileID]
	if !ok || it.node.IsFolder() {
		return nil, NotFound(fileID)
	}
	data := append([]byte(nil), it.content...)
	if s.corrupt > 0 {
		s.corrupt--
		data = append(data, '!')
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Service) Upload(ctx context.Context, token, folderID, name string, content io.Reader) (types.RemoteNode, error) {
	if err := s.begin(OpUpload, token); err != nil {
		return types.RemoteNode{}, err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return types.RemoteNode{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.items[folderID]
	if !ok {
		return types.RemoteNode{}, NotFound(folderID)
	}
	if existing := s.findLocked(folderID, name); existing != nil && !existing.node.IsFolder() {
		if !existing.node.Can(types.CapEditDocumentContent) {
			return types.RemoteNode{}, PermissionDenied(existing.node.ID)
		}
		s.writeLocked(existing, data)
		return existing.node, nil
	}
	if !parent.node.Can(types.CapCreateDocument) {
		return types.RemoteNode{}, PermissionDenied(folderID)
	}
	return s.addLocked(folderID, name, types.KindFile, data, FilePermissions), nil
}

func (s *Service) CreateFolder(ctx context.Context, token, parentID, name string) (types.RemoteNode, error) {
	if err := s.begin(OpCreateFolder, token); err != nil {
		return types.RemoteNode{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.items[parentID]
	if !ok {
		return types.RemoteNode{}, NotFound(parentID)
	}
	if !parent.node.Can(types.CapCreateDocument) {
		return types.RemoteNode{}, PermissionDenied(parentID)
	}
	return s.addLocked(parentID, name, types.KindFolder, nil, FolderPermissions), nil
}

func (s *Service) Delete(ctx context.Context, token, nodeID string) error {
	if err := s.begin(OpDelete, token); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[nodeID]
	if !ok {
		return NotFound(nodeID)
	}
	if !it.node.Can(types.CapDeleteDocument) {
		return PermissionDenied(nodeID)
	}
	s.removeLocked(nodeID)
	return nil
}

func sortNodes(nodes []types.RemoteNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}

// NetworkFailure is a transient error the retry loop will retry
func NetworkFailure() error {
	return utils.NewCLIError(utils.ErrCodeNetworkError, "simulated network failure").
		WithRetryable(true).
		Err()
}

// Unauthorized is the error returned for a missing or wrong token
func Unauthorized() error {
	return utils.NewCLIError(utils.ErrCodeAuthExpired, "simulated unauthorized").
		WithHTTPStatus(401).
		Err()
}

// PermissionDenied is the error returned for a missing capability
func PermissionDenied(id string) error {
	return utils.NewCLIError(utils.ErrCodePermissionDenied, "simulated permission denied").
		WithHTTPStatus(403).
		WithContext("nodeId", id).
		Err()
}

// NotFound is the error returned for an unknown node
func NotFound(id string) error {
	return utils.NewCLIError(utils.ErrCodeFileNotFound, "simulated not found").
		WithHTTPStatus(404).
		WithContext("nodeId", id).
		Err()
}
