package tracking

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// GetExperimentByName looks an experiment up by its unique name.
func (c *Client) GetExperimentByName(ctx context.Context, name string) (*Experiment, error) {
	var reply struct {
		Experiment Experiment `json:"experiment"`
	}
	q := url.Values{"experiment_name": {name}}
	if err := c.get(ctx, "experiments/get-by-name", q, &reply); err != nil {
		return nil, errors.Wrapf(err, "Unable to get experiment %q", name)
	}
	return &reply.Experiment, nil
}

// CreateExperiment creates an experiment and returns its id.
func (c *Client) CreateExperiment(ctx context.Context, name string) (string, error) {
	req := struct {
		Name string `json:"name"`
	}{name}
	var reply struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := c.post(ctx, "experiments/create", req, &reply); err != nil {
		return "", errors.Wrapf(err, "Unable to create experiment %q", name)
	}
	return reply.ExperimentID, nil
}

// SetExperiment returns the id of the named experiment, creating it first
// when the server does not know it.
func (c *Client) SetExperiment(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New("experiment name is empty")
	}
	exp, err := c.GetExperimentByName(ctx, name)
	if err == nil {
		if exp.LifecycleStage == "deleted" {
			return "", errors.Errorf("experiment %q is deleted, restore it or pick another name", name)
		}
		return exp.ExperimentID, nil
	}
	if !IsNotFound(err) {
		return "", err
	}

	id, err := c.CreateExperiment(ctx, name)
	if IsAlreadyExists(err) {
		// Created concurrently by someone else.
		exp, err = c.GetExperimentByName(ctx, name)
		if err != nil {
			return "", err
		}
		return exp.ExperimentID, nil
	}
	if err != nil {
		return "", err
	}
	c.logger.Info("created experiment", zap.String("name", name), zap.String("experiment_id", id))
	return id, nil
}
