package weed_server

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"

	"github.com/seaweedfs/ramtier/weed/storage"
)

const heartbeatMinRetryInterval = 50 * time.Millisecond

func (vs *VolumeServer) heartbeatBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(vs.pulse/10, heartbeatMinRetryInterval)
	b.MaxInterval = max(vs.pulse, heartbeatMinRetryInterval)
	b.MaxElapsedTime = max(2*vs.pulse, heartbeatMinRetryInterval)
	return backoff.WithContext(b, ctx)
}

// doHeartbeat sends a full block report, retrying with backoff, and then
// removes the blocks the master no longer knows.
func (vs *VolumeServer) doHeartbeat(ctx context.Context) error {
	hb := vs.store.CollectHeartbeat()
	resp, err := backoff.RetryNotifyWithData(func() (*storage.HeartbeatResponse, error) {
		return vs.master.SendHeartbeat(ctx, hb)
	}, vs.heartbeatBackOff(ctx), func(err error, wait time.Duration) {
		glog.V(1).Infof("heartbeat to master failed, retry in %v: %v", wait, err)
	})
	if err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}
	if len(resp.BlocksToDelete) == 0 {
		return nil
	}
	deleted, err := vs.store.DeleteBlocks(resp.BlocksToDelete)
	glog.V(0).Infof("deleted %d of %d blocks requested by master", deleted, len(resp.BlocksToDelete))
	if err != nil {
		return fmt.Errorf("delete blocks: %w", err)
	}
	return nil
}
