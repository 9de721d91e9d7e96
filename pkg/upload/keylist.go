package upload

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/awsutil"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/blobstore"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/denormalized"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/naming"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/tally"
	log "github.com/sirupsen/logrus"
)

// putKeyList writes the key list and count file below prefix.
func (o *Orchestrator) putKeyList(ctx context.Context, prefix string) error {
	counts := denormalized.Counts{ObjectCount: len(o.keys)}
	for name, v := range map[string]any{
		denormalized.KeyFile:   o.keys,
		denormalized.CountFile: counts,
	} {
		key := prefix + name
		logger := o.logger.WithFields(log.Fields{"bucket": o.cfg.Bucket, "object_key": key})
		if !o.cfg.Write {
			logger.Info("would upload")
			continue
		}
		body, err := json.MarshalIndent(v, "", "    ")
		if err != nil {
			return err
		}
		cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		err = o.store.Put(cctx, key, bytes.NewReader(body), blobstore.PutOptions{
			ContentType: "application/json",
			ACL:         blobstore.ACLPublicRead,
			Tagging:     o.cfg.Tagging,
		})
		cancel()
		if err != nil {
			if awsutil.IsAccessDenied(err) {
				return naming.Fatal(err)
			}
			o.rc.Tally.Inc(tally.UploadErrors)
			logger.Error("upload failed: ", err)
			continue
		}
		logger.Info("uploaded")
	}
	return nil
}
