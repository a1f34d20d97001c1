package core

// RemoteSandboxToken is the project_path stored for sessions that run in a
// remote sandbox instead of a directory on this host.
const RemoteSandboxToken = "e2b://sandbox"

// WorkspaceRequest describes how a session's workspace is provisioned. The
// set of implementations is closed; dispatch is a type switch whose default
// branch fails.
type WorkspaceRequest interface {
	ProjectType() ProjectType
	isWorkspaceRequest()
}

// LocalRequest places the workspace at a caller-chosen directory, which must
// resolve inside the configured workspace root.
type LocalRequest struct {
	Path string
}

// GitHubCloneRequest clones an owner/repo slug into a fresh directory under
// the workspace root.
type GitHubCloneRequest struct {
	Repo string
}

// WorktreeRequest creates a detached git worktree of an existing repository
// in a fresh directory under the workspace root.
type WorktreeRequest struct {
	BasePath string
}

// RemoteSandboxRequest involves no local filesystem state.
type RemoteSandboxRequest struct{}

func (LocalRequest) ProjectType() ProjectType         { return ProjectLocal }
func (GitHubCloneRequest) ProjectType() ProjectType   { return ProjectGitHub }
func (WorktreeRequest) ProjectType() ProjectType      { return ProjectWorktree }
func (RemoteSandboxRequest) ProjectType() ProjectType { return ProjectE2B }

func (LocalRequest) isWorkspaceRequest()         {}
func (GitHubCloneRequest) isWorkspaceRequest()   {}
func (WorktreeRequest) isWorkspaceRequest()      {}
func (RemoteSandboxRequest) isWorkspaceRequest() {}
