package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/heyross/InvokeAI/internal/common/fsutil"
	"github.com/heyross/InvokeAI/internal/config"
	"github.com/heyross/InvokeAI/internal/httpapi"
	"github.com/heyross/InvokeAI/internal/modelcache"
	"github.com/heyross/InvokeAI/internal/modelstore"
	"github.com/heyross/InvokeAI/internal/tensor"
	"github.com/heyross/InvokeAI/internal/workflows"
)

const mib = 1 << 20

func main() {
	// Flags with environment variable defaults
	defaultAddr := ":9090"
	if v := os.Getenv("INVOKEAI_ADDR"); v != "" {
		defaultAddr = v
	}
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. :9090")
	configPath := flag.String("config", os.Getenv("INVOKEAI_CONFIG"), "Optional config file (.yaml/.json/.toml); flags override it")
	modelStorePath := flag.String("model-store", "~/invokeai/models.yaml", "Path to the model config store file")
	workflowsPath := flag.String("workflows", "~/invokeai/workflows.json", "Path to the workflow store file")
	computeDevice := flag.String("compute-device", "cuda:0", "Device the cache loads models onto")
	vramBudgetMB := flag.Int("vram-budget-mb", 0, "Device memory budget in MB for all cached models (0=unlimited)")
	vramMarginMB := flag.Int("vram-margin-mb", 0, "Reserved device memory margin in MB to keep free")
	deviceCapacityMB := flag.Int("device-capacity-mb", 0, "Simulated device capacity in MB (0=unbounded)")
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("load config")
		}
		applyConfig(cfg, addr, modelStorePath, workflowsPath, computeDevice, vramBudgetMB, vramMarginMB, deviceCapacityMB)
	}

	storePath, err := fsutil.ExpandHome(*modelStorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve model store path")
	}
	wfPath, err := fsutil.ExpandHome(*workflowsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve workflows path")
	}

	models, err := modelstore.Open(storePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", storePath).Msg("open model store")
	}
	wfs := workflows.NewStore(wfPath)

	backend := tensor.NewSimBackend()
	device := tensor.Device(*computeDevice)
	if *deviceCapacityMB > 0 {
		backend.SetCapacity(device, int64(*deviceCapacityMB)*mib)
	}
	cache := modelcache.NewCache(modelcache.CacheConfig{
		Backend:         backend,
		ComputeDevice:   device,
		VRAMBudgetBytes: int64(*vramBudgetMB) * mib,
		VRAMMarginBytes: int64(*vramMarginMB) * mib,
		Logger:          log,
	})

	httpapi.SetLogger(log)
	mux := httpapi.NewMux(models, wfs, cache)
	srv := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Info().Str("addr", *addr).Str("model_store", storePath).Str("device", *computeDevice).Msg("invokeai listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
}

// applyConfig fills in file-provided values for flags the user left at
// their defaults.
func applyConfig(cfg config.Config, addr, modelStorePath, workflowsPath, computeDevice *string, vramBudgetMB, vramMarginMB, deviceCapacityMB *int) {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if cfg.Addr != "" && !set["addr"] {
		*addr = cfg.Addr
	}
	if cfg.ModelStorePath != "" && !set["model-store"] {
		*modelStorePath = cfg.ModelStorePath
	}
	if cfg.WorkflowsPath != "" && !set["workflows"] {
		*workflowsPath = cfg.WorkflowsPath
	}
	if cfg.ComputeDevice != "" && !set["compute-device"] {
		*computeDevice = cfg.ComputeDevice
	}
	if cfg.VRAMBudgetMB != 0 && !set["vram-budget-mb"] {
		*vramBudgetMB = cfg.VRAMBudgetMB
	}
	if cfg.VRAMMarginMB != 0 && !set["vram-margin-mb"] {
		*vramMarginMB = cfg.VRAMMarginMB
	}
	if cfg.DeviceCapacityMB != 0 && !set["device-capacity-mb"] {
		*deviceCapacityMB = cfg.DeviceCapacityMB
	}
}
