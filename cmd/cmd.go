// Package cmd 命令行：默认作为 Lambda 运行，serve/estimate/crawl 用于本地
package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chaos-io/depthlambda/archive"
	"github.com/chaos-io/depthlambda/config"
	"github.com/chaos-io/depthlambda/depth"
	"github.com/chaos-io/depthlambda/depth/engine"
	"github.com/chaos-io/depthlambda/handler"
	"github.com/chaos-io/depthlambda/server"
	"github.com/chaos-io/depthlambda/stl"
	"github.com/chaos-io/depthlambda/util"
	"github.com/chaos-io/depthlambda/util/crawler"
	nhttp "github.com/chaos-io/depthlambda/util/http"
)

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "depthlambda",
		Short:         "Monocular depth estimation behind an API Gateway proxy",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.SetupLogger(os.Stderr, config.Debug())
		},
		Args: cobra.NoArgs,
		RunE: LambdaHandler,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the depth endpoint over HTTP",
		Args:  cobra.NoArgs,
		RunE:  ServeHandler,
	}

	estimateCmd := &cobra.Command{
		Use:   "estimate SRC",
		Short: "Estimate depth for a local file or URL",
		Args:  cobra.ExactArgs(1),
		RunE:  EstimateHandler,
	}
	estimateCmd.Flags().StringP("output", "o", "depth.png", "Visualization output path")
	estimateCmd.Flags().String("stl", "", "Also write a relief STL to this path")

	crawlCmd := &cobra.Command{
		Use:   "crawl PAGE",
		Short: "Download the images referenced by a web page",
		Args:  cobra.ExactArgs(1),
		RunE:  CrawlHandler,
	}
	crawlCmd.Flags().StringP("output", "o", "images", "Directory to save images into")
	crawlCmd.Flags().String("filter", "", "Only keep image URLs containing this substring")
	crawlCmd.Flags().IntP("concurrency", "c", 4, "Parallel downloads")
	crawlCmd.Flags().Bool("estimate", false, "Write a depth map next to every downloaded image")

	rootCmd.AddCommand(serveCmd, estimateCmd, crawlCmd)
	return rootCmd
}

// LambdaHandler 冷启动时加载一次模型，之后每次调用复用
func LambdaHandler(cmd *cobra.Command, _ []string) error {
	h, err := buildHandler(cmd.Context())
	if err != nil {
		return err
	}
	lambda.Start(h.Handle)
	return nil
}

func ServeHandler(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printConfig()

	h, err := buildHandler(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = h.Close()
	}()

	// 只有本地目录归档需要定期清理，S3 交给生命周期规则
	var pruner *archive.Pruner
	if dir := config.ArchiveDir(); dir != "" && config.ArchiveBucket() == "" {
		store, err := archive.NewDirStore(dir)
		if err != nil {
			return err
		}
		if pruner, err = archive.NewPruner(store, config.ArchiveTTL(), config.PruneSchedule()); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", config.Host())
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           server.NewEngine(h.Handle),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if pruner != nil {
		g.Go(func() error {
			pruner.Start()
			<-ctx.Done()
			pruner.Stop()
			return nil
		})
	}

	return g.Wait()
}

func EstimateHandler(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	stlPath, _ := cmd.Flags().GetString("stl")

	est, fetcher, err := buildEstimator(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		_ = est.Close()
	}()

	return estimateFile(cmd.Context(), est, fetcher, engine.NewWorkspace(), args[0], output, stlPath)
}

func CrawlHandler(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("output")
	filter, _ := cmd.Flags().GetString("filter")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	withDepth, _ := cmd.Flags().GetBool("estimate")

	c := crawler.New(nhttp.NewHTTPClient(nhttp.WithTimeout(config.FetchTimeout())), concurrency)
	urls, err := c.ImageURLs(cmd.Context(), args[0], filter)
	if err != nil {
		return err
	}
	slog.Info("found images", "page", args[0], "count", len(urls))

	paths, err := c.Download(cmd.Context(), urls, dir)
	if err != nil {
		return err
	}
	fmt.Printf("downloaded %d/%d images to %s\n", len(paths), len(urls), dir)
	if !withDepth {
		return nil
	}

	est, fetcher, err := buildEstimator(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		_ = est.Close()
	}()

	ws := engine.NewWorkspace()
	for _, p := range paths {
		out := strings.TrimSuffix(p, filepath.Ext(p)) + "_depth.png"
		if err := estimateFile(cmd.Context(), est, fetcher, ws, p, out, ""); err != nil {
			slog.Warn("estimate failed", "path", p, "error", err)
		}
	}
	return nil
}

func estimateFile(ctx context.Context, est *depth.Estimator, fetcher *util.Fetcher, ws *engine.Workspace, src, output, stlPath string) error {
	img, err := loadImage(ctx, fetcher, src)
	if err != nil {
		return err
	}
	res, err := est.Estimate(ctx, ws, img)
	if err != nil {
		return err
	}

	if err := writeFile(output, func(f *os.File) error { return png.Encode(f, res.Visualization) }); err != nil {
		return err
	}
	fmt.Printf("depth map: %s (%dx%d)\n", output, res.Disparity.Width, res.Disparity.Height)

	if stlPath != "" {
		if err := writeFile(stlPath, func(f *os.File) error { return stl.Write(f, res.Disparity, stl.DefaultOptions()) }); err != nil {
			return err
		}
		fmt.Printf("stl: %s\n", stlPath)
	}
	return nil
}

// loadImage src 为 http(s) 地址时下载，否则读本地文件
func loadImage(ctx context.Context, fetcher *util.Fetcher, src string) (image.Image, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		img, _, err := fetcher.DownloadImage(ctx, src)
		return img, err
	}
	img, err := util.OpenImage(src)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	return img, nil
}

func writeFile(path string, write func(*os.File) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func buildEstimator(_ context.Context) (*depth.Estimator, *util.Fetcher, error) {
	g, err := loadGraph()
	if err != nil {
		return nil, nil, err
	}
	interp, err := depth.ParseInterpolation(config.Interpolation())
	if err != nil {
		_ = g.Close()
		return nil, nil, err
	}
	palette, err := depth.ParsePalette(config.Palette())
	if err != nil {
		_ = g.Close()
		return nil, nil, err
	}

	est := depth.NewEstimator(g, depth.WithInterpolation(interp), depth.WithPalette(palette))
	fetcher := util.NewFetcher(nhttp.NewHTTPClient(nhttp.WithTimeout(config.FetchTimeout())))
	return est, fetcher, nil
}

func buildHandler(ctx context.Context) (*handler.Handler, error) {
	est, fetcher, err := buildEstimator(ctx)
	if err != nil {
		return nil, err
	}
	store, err := buildArchive(ctx)
	if err != nil {
		_ = est.Close()
		return nil, err
	}
	return handler.New(est, handler.WithFetcher(fetcher), handler.WithArchive(store)), nil
}

func loadGraph() (engine.Graph, error) {
	graphPath := config.GraphPath()
	if graphPath == depth.HeuristicGraphName {
		slog.Warn("using heuristic luminance graph, depth is approximate")
		return &depth.LuminanceGraph{}, nil
	}
	g, err := engine.LoadONNX(graphPath, config.ParamsPath(), engine.Options{
		SharedLibraryPath: config.SharedLibraryPath(),
		NumThreads:        config.NumThreads(),
	})
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	slog.Info("graph loaded", "graph", graphPath, "input", g.InputName(), "output", g.OutputName())
	return g, nil
}

func buildArchive(ctx context.Context) (archive.Store, error) {
	if bucket := config.ArchiveBucket(); bucket != "" {
		return archive.NewS3StoreFromEnv(ctx, bucket, config.ArchivePrefix())
	}
	if dir := config.ArchiveDir(); dir != "" {
		return archive.NewDirStore(dir)
	}
	return archive.Nop{}, nil
}

func printConfig() {
	vars := config.AsMap()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		v := vars[name]
		fmt.Printf("%s=%v\t# %s\n", v.Name, v.Value, v.Description)
	}
}
