package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// Label keys used to mark the training container. All keys share the
// "speech-enhancement." prefix to avoid collisions with labels set by
// other tools.
const (
	LabelPrefix = "speech-enhancement."

	// LabelRole marks what a container is used for.
	// Key: "speech-enhancement.role", Value: RoleTrainer.
	LabelRole = LabelPrefix + "role"

	// LabelRepoDir records where the checkout lives inside the container.
	// The launch runs its steps from this directory when present.
	LabelRepoDir = LabelPrefix + "repo-dir"
)

// RoleTrainer is the LabelRole value of the container that runs training.
const RoleTrainer = "trainer"

// ContainerInfo holds the fields of a container the launcher cares about.
type ContainerInfo struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	State   string            `json:"state"`
	Labels  map[string]string `json:"labels,omitempty"`
	Created int64             `json:"created"`
}

// RepoDir returns the checkout path recorded on the container, or "".
func (c ContainerInfo) RepoDir() string {
	return c.Labels[LabelRepoDir]
}

// TrainerFilter returns the label filter that selects training containers.
func TrainerFilter() filters.Args {
	return filters.NewArgs(filters.Arg("label", LabelRole+"="+RoleTrainer))
}

// FindTrainingContainer locates the container the launch runs in.
//
// With a name, the container is looked up directly and must be running.
// Without one, the running containers labelled as trainers are listed; if
// several match, the most recently created wins.
func FindTrainingContainer(ctx context.Context, c *Client, name string) (*ContainerInfo, error) {
	if name != "" {
		inspect, err := c.inner.ContainerInspect(ctx, name)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitDockerNotRunning,
				fmt.Sprintf("container %q not found", name), err)
		}
		info := ContainerInfo{
			ID:   inspect.ID,
			Name: strings.TrimPrefix(inspect.Name, "/"),
		}
		if inspect.State != nil {
			info.State = string(inspect.State.Status)
		}
		if inspect.Config != nil {
			info.Labels = inspect.Config.Labels
		}
		if info.State != "running" {
			return nil, model.NewCLIError(model.ExitDockerNotRunning,
				fmt.Sprintf("container %q is %s, not running", info.Name, info.State))
		}
		return &info, nil
	}

	summaries, err := c.inner.ContainerList(ctx, container.ListOptions{Filters: TrainerFilter()})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "failed to list Docker containers", err)
	}

	infos := make([]ContainerInfo, 0, len(summaries))
	for _, s := range summaries {
		infos = append(infos, summaryToInfo(s))
	}
	return selectTrainer(infos)
}

// summaryToInfo converts a Docker API container summary. Docker returns
// names with a leading "/", which is stripped.
func summaryToInfo(s container.Summary) ContainerInfo {
	name := ""
	if len(s.Names) > 0 {
		name = strings.TrimPrefix(s.Names[0], "/")
	}
	return ContainerInfo{
		ID:      s.ID,
		Name:    name,
		State:   string(s.State),
		Labels:  s.Labels,
		Created: s.Created,
	}
}

// selectTrainer picks the newest running trainer.
func selectTrainer(infos []ContainerInfo) (*ContainerInfo, error) {
	running := make([]ContainerInfo, 0, len(infos))
	for _, info := range infos {
		if info.State == "running" && info.Labels[LabelRole] == RoleTrainer {
			running = append(running, info)
		}
	}
	if len(running) == 0 {
		return nil, model.NewCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("no running container labelled %s=%s", LabelRole, RoleTrainer))
	}

	sort.SliceStable(running, func(i, j int) bool {
		return running[i].Created > running[j].Created
	})
	return &running[0], nil
}
