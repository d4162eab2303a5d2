package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/usbncm/device"
	"github.com/ardnew/usbncm/device/class/ncm"
	"github.com/ardnew/usbncm/device/hal/memhal"
	"github.com/ardnew/usbncm/internal/config"
	"github.com/ardnew/usbncm/internal/hostsim"
	"github.com/ardnew/usbncm/pkg"
)

// hostMAC is the simulated host's address.
var hostMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0xFE}

var (
	passColor = color.New(color.FgHiGreen, color.Bold)
	failColor = color.New(color.FgHiRed, color.Bold)
)

type selftestCommand struct {
	common    commonFlags
	frames     int
	frameSize  int
	cpuProfile string
}

func (c *selftestCommand) Synopsis() string {
	return "echo test frames through the NCM function on an in-memory bus"
}

func (c *selftestCommand) Help() string {
	var b strings.Builder
	b.WriteString("Usage: ncm-device selftest [options]\n\n")
	b.WriteString("  Enumerates the NCM function with a simulated host and echoes frames\n")
	b.WriteString("  through it. Exits non-zero if any frame is lost or corrupted.\n\n")
	b.WriteString("Options:\n\n")
	fs := c.flags(&b)
	fs.PrintDefaults()
	return b.String()
}

func (c *selftestCommand) flags(out io.Writer) *flag.FlagSet {
	fs := newFlagSet("selftest", out)
	c.common.register(fs)
	fs.IntVar(&c.frames, "frames", 0, "number of frames to echo (overrides the file)")
	fs.IntVar(&c.frameSize, "frame-size", 0, "bytes per frame (overrides the file)")
	fs.StringVar(&c.cpuProfile, "cpuprofile", "", "write a CPU profile of the run to `file`")
	return fs
}

func (c *selftestCommand) Run(args []string) int {
	fs := c.flags(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := c.load()
	if err != nil {
		pkg.LogError(component, "invalid configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.SelftestTimeout())
	defer cancel()

	if c.cpuProfile != "" {
		f, err := os.Create(c.cpuProfile)
		if err != nil {
			pkg.LogError(component, "failed to create profile", "error", err)
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			pkg.LogError(component, "failed to start profile", "error", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg)
		defer srv.Close()
	}

	res, err := selftest(ctx, cfg, ncm.NewMetrics(reg))
	if err != nil {
		failColor.Fprint(os.Stdout, "FAIL")
		fmt.Fprintf(os.Stdout, " %v\n", err)
		return 1
	}

	passColor.Fprint(os.Stdout, "PASS")
	fmt.Fprintf(os.Stdout, " %d/%d frames, %d bytes in %d NTBs, %v (mps %d)\n",
		res.Received, res.Sent, res.Bytes, res.NTBs,
		res.Elapsed.Round(time.Microsecond), cfg.Network.MaxPacketSize)
	return 0
}

func (c *selftestCommand) load() (*config.Config, error) {
	cfg, err := c.common.load()
	if err != nil {
		return nil, err
	}
	if c.frames != 0 {
		cfg.Selftest.Frames = c.frames
	}
	if c.frameSize != 0 {
		cfg.Selftest.FrameSize = c.frameSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			pkg.LogWarn(component, "metrics server failed", "addr", addr, "error", err)
		}
	}()
	pkg.LogInfo(component, "serving metrics", "addr", addr)
	return srv
}

// selftest builds the device, attaches it to a memory bus and runs the echo
// loop against a simulated host until every frame is back.
func selftest(ctx context.Context, cfg *config.Config, metrics *ncm.Metrics) (hostsim.Result, error) {
	b := device.NewBuilder(cfg.DeviceConfig())
	fn, err := ncm.New(b, cfg.NCMConfig(metrics))
	if err != nil {
		return hostsim.Result{}, errors.Wrap(err, "NCM function")
	}
	dev, err := b.Build()
	if err != nil {
		return hostsim.Result{}, errors.Wrap(err, "build device")
	}

	bus := memhal.New()
	stack := device.NewStack(dev, bus)
	if err := stack.Start(ctx); err != nil {
		return hostsim.Result{}, errors.Wrap(err, "start stack")
	}
	defer stack.Stop()

	pkg.LogInfo(component, "device attached",
		"mac", fn.MACAddress().String(),
		"commInterface", fn.CommInterface(),
		"dataInterface", fn.DataInterface())

	g, gctx := errgroup.WithContext(ctx)
	echoCtx, stopEcho := context.WithCancel(gctx)
	defer stopEcho()

	tx, rx := fn.Split()
	g.Go(func() error {
		err := hostsim.Echo(echoCtx, tx, rx)
		if echoCtx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "device echo")
	})

	var res hostsim.Result
	g.Go(func() error {
		defer stopEcho()
		host := hostsim.New(bus.Host(), hostMAC)
		if err := host.Enumerate(gctx); err != nil {
			return errors.Wrap(err, "enumerate")
		}
		if err := host.SetLink(gctx, true); err != nil {
			return errors.Wrap(err, "enable data interface")
		}
		if err := host.WaitConnected(gctx); err != nil {
			return errors.Wrap(err, "wait for connection")
		}
		r, err := host.Exchange(gctx, hostsim.Options{
			Frames:    cfg.Selftest.Frames,
			FrameSize: cfg.Selftest.FrameSize,
		})
		res = r
		return err
	})

	err = g.Wait()
	return res, err
}
