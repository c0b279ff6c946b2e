// Command spack-buildcache pushes concrete specs to a buildcache mirror
// (spec.md §4.6/§4.9); "push" is its only verb, and it does not fetch.
// It generalizes cmd/retagger's
// YAML-driven batch retag flow from OCI image tags to buildcache entries:
// a YAML list of jobs is read, each job is resolved against a mirror, and
// the batch runs through pkg/buildcache.Pipeline's bounded worker pool
// rather than retagger's own errgroupCollector.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/goccy/go-yaml"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/nscaledev/spackcore/internal/corectx"
	"github.com/nscaledev/spackcore/pkg/buildcache"
	"github.com/nscaledev/spackcore/pkg/specfile"
)

// pushJobConfig is one entry of a push batch's YAML config: a specfile on
// disk plus the already-built tarball spec.md §4.7 produces for it.
type pushJobConfig struct {
	SpecfilePath string `json:"specfile" yaml:"specfile"`
	TarballPath  string `json:"tarball" yaml:"tarball"`
}

type runConfig struct {
	MirrorURL   string
	MirrorDir   string
	Force       bool
	Concurrency int64
	UpdateIndex bool
}

func main() {
	var rcfg runConfig

	flag.StringVar(&rcfg.MirrorURL, "mirror-url", os.Getenv("SPACK_BUILDCACHE_URL"), "HTTP(S) buildcache mirror base URL")
	flag.StringVar(&rcfg.MirrorDir, "mirror-dir", os.Getenv("SPACK_BUILDCACHE_DIR"), "local directory mirror, used instead of -mirror-url")
	flag.BoolVar(&rcfg.Force, "force", corectx.BoolFromEnv("SPACK_BUILDCACHE_FORCE"), "re-upload tarballs even if already present")
	flag.Int64Var(&rcfg.Concurrency, "concurrency", 4, "push/fetch worker pool size")
	flag.BoolVar(&rcfg.UpdateIndex, "update-index", corectx.BoolFromEnv("SPACK_BUILDCACHE_UPDATE_INDEX"), "regenerate the mirror index after pushing")
	flag.Parse()

	verb := flag.Arg(0)
	configPath := flag.Arg(1)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cc := corectx.New(corectx.WithConcurrency(rcfg.Concurrency))

	var err error
	switch verb {
	case "push":
		err = runPush(ctx, cc, configPath, rcfg)
	default:
		err = errors.Errorf("usage: spack-buildcache push <config.yaml> [flags]")
	}
	if err != nil {
		cc.Log.Error(err)
		os.Exit(1)
	}
}

func openMirror(rcfg runConfig) (buildcache.Mirror, error) {
	if rcfg.MirrorURL != "" {
		return buildcache.NewHTTPMirror(rcfg.MirrorURL), nil
	}
	if rcfg.MirrorDir != "" {
		return buildcache.NewFileMirror(rcfg.MirrorDir)
	}
	return nil, errors.New("one of -mirror-url or -mirror-dir is required")
}

func runPush(ctx context.Context, cc *corectx.Context, configPath string, rcfg runConfig) error {
	dt, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrapf(err, "reading config file %s", configPath)
	}
	var jobConfigs []pushJobConfig
	if err := yaml.Unmarshal(dt, &jobConfigs); err != nil {
		return errors.Wrap(err, "unmarshalling config")
	}

	mirror, err := openMirror(rcfg)
	if err != nil {
		return err
	}

	jobs := make([]buildcache.PushJob, 0, len(jobConfigs))
	for _, jc := range jobConfigs {
		specfileBytes, err := os.ReadFile(jc.SpecfilePath)
		if err != nil {
			return errors.Wrapf(err, "reading specfile %s", jc.SpecfilePath)
		}
		s, err := specfile.Decode(specfileBytes)
		if err != nil {
			return errors.Wrapf(err, "decoding specfile %s", jc.SpecfilePath)
		}

		tb, err := openTarballInfo(jc.TarballPath)
		if err != nil {
			return err
		}

		jobs = append(jobs, buildcache.PushJob{Spec: s, Tarball: tb, SpecfileBytes: specfileBytes})
	}

	pipeline := &buildcache.Pipeline{
		Mirror:      mirror,
		Concurrency: rcfg.Concurrency,
		Force:       rcfg.Force,
		UpdateIndex: rcfg.UpdateIndex,
	}

	succeeded, failed, err := pipeline.PushAll(ctx, jobs)
	for _, r := range succeeded {
		cc.Log.WithFields(logFields(r)).Info("pushed")
	}
	for _, r := range failed {
		cc.Log.WithFields(logFields(r)).Warn("push failed")
	}
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		return errors.Errorf("%d of %d pushes failed", len(failed), len(jobs))
	}
	fmt.Fprintf(os.Stderr, "pushed %d specs\n", len(succeeded))
	return nil
}

func logFields(r buildcache.PushResult) map[string]interface{} {
	fields := map[string]interface{}{"state": r.State.String()}
	if r.Spec != nil {
		fields["name"] = r.Spec.Name
		fields["hash"] = r.Spec.Hash
	}
	if r.Err != nil {
		fields["error"] = r.Err.Error()
	}
	return fields
}

// openTarballInfo stats and digests path in one pass via a throwaway
// handle, then reopens it fresh for the caller to stream into the
// pipeline's upload, since a digest.FromReader consumes its input and a
// single *os.File can't be rewound into the same io.Reader contract
// buildcache.TarballInfo.Reader expects.
func openTarballInfo(path string) (buildcache.TarballInfo, error) {
	hf, err := os.Open(path)
	if err != nil {
		return buildcache.TarballInfo{}, errors.Wrapf(err, "opening tarball %s", path)
	}
	dgst, err := digest.FromReader(hf)
	hf.Close()
	if err != nil {
		return buildcache.TarballInfo{}, errors.Wrapf(err, "digesting tarball %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return buildcache.TarballInfo{}, errors.Wrapf(err, "reopening tarball %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return buildcache.TarballInfo{}, errors.Wrapf(err, "statting tarball %s", path)
	}
	return buildcache.TarballInfo{Reader: f, Size: st.Size(), Digest: dgst}, nil
}
