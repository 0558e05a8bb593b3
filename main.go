package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"web/geoscatter/cluster"
	"web/geoscatter/dataset"
	"web/geoscatter/engine"
	"web/geoscatter/geo"
	"web/geoscatter/perf"
)

func loadConfig() *viper.Viper {
	v := viper.New()
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("data.regions", "")
	v.SetDefault("data.snapshots", "data/snapshots")
	v.SetDefault("engine.seed", 42)
	v.SetDefault("cluster.minZoom", 0)
	v.SetDefault("cluster.maxZoom", 16)
	v.SetDefault("cluster.radius", 40.0)
	v.SetDefault("cluster.extent", 512)
	v.SetDefault("cluster.minPoints", 2)
	v.SetDefault("cluster.nodeSize", 64)
	v.SetDefault("spatial.cellSize", 0.01)
	v.SetDefault("device.gpu", "")
	v.SetDefault("device.mobile", false)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("GEOSCATTER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Printf("Failed to read config: %v\n", err)
			os.Exit(1)
		}
	}
	return v
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// parseBounds reads the standard bounds+zoom query parameters. On error it
// writes the 400 response itself and reports false.
func parseBounds(c *gin.Context) (geo.BBox, float64, bool) {
	var box geo.BBox
	var err error

	if box.MaxLat, err = strconv.ParseFloat(c.Query("north"), 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid north parameter"})
		return box, 0, false
	}
	if box.MinLat, err = strconv.ParseFloat(c.Query("south"), 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid south parameter"})
		return box, 0, false
	}
	if box.MaxLng, err = strconv.ParseFloat(c.Query("east"), 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid east parameter"})
		return box, 0, false
	}
	if box.MinLng, err = strconv.ParseFloat(c.Query("west"), 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid west parameter"})
		return box, 0, false
	}
	zoom, err := strconv.ParseFloat(c.Query("zoom"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid zoom parameter"})
		return box, 0, false
	}
	return box, zoom, true
}

func engineError(c *gin.Context, err error) {
	if errors.Is(err, engine.ErrNotReady) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no dataset loaded"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func main() {
	cfg := loadConfig()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	profile := perf.Probe(log, cfg.GetString("device.gpu"), cfg.GetBool("device.mobile"))
	gov := perf.NewGovernor(log, perf.WithInitialTier(profile.InitialTier()))
	leaks := perf.NewLeakDetector(log, 0)

	eng := engine.New(engine.Config{
		SnapshotDir: cfg.GetString("data.snapshots"),
		CellSize:    cfg.GetFloat64("spatial.cellSize"),
		Seed:        cfg.GetInt64("engine.seed"),
		Cluster: cluster.Options{
			MinZoom:   cfg.GetInt("cluster.minZoom"),
			MaxZoom:   cfg.GetInt("cluster.maxZoom"),
			Radius:    cfg.GetFloat64("cluster.radius"),
			Extent:    cfg.GetInt("cluster.extent"),
			MinPoints: cfg.GetInt("cluster.minPoints"),
			NodeSize:  cfg.GetInt("cluster.nodeSize"),
		},
	}, geo.NewStore(log), gov, log)

	if path := cfg.GetString("data.regions"); path != "" {
		regions, err := dataset.LoadRegions(path)
		if err != nil {
			log.Fatal("failed to load regions", zap.String("path", path), zap.Error(err))
		}
		if err := eng.Rebuild(context.Background(), regions); err != nil {
			log.Fatal("initial rebuild failed", zap.Error(err))
		}
	} else {
		log.Info("no regions file configured, starting empty")
	}

	r := gin.Default()

	// Enable CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Visible nodes for the current view
	r.GET("/api/visible", func(c *gin.Context) {
		box, zoom, ok := parseBounds(c)
		if !ok {
			return
		}
		visible, err := eng.GetVisibleBounds(box, zoom)
		if err != nil {
			engineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"nodes": visible})
	})

	// Same view as GeoJSON for map clients
	r.GET("/api/visible/geojson", func(c *gin.Context) {
		box, zoom, ok := parseBounds(c)
		if !ok {
			return
		}
		visible, err := eng.GetVisibleBounds(box, zoom)
		if err != nil {
			engineError(c, err)
			return
		}
		c.JSON(http.StatusOK, cluster.ToGeoJSON(visible))
	})

	// Rollup of what is on screen
	r.GET("/api/metadata", func(c *gin.Context) {
		box, zoom, ok := parseBounds(c)
		if !ok {
			return
		}
		summary, err := eng.SummarizeBounds(box, zoom)
		if err != nil {
			engineError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	// Entities behind one visible node
	r.GET("/api/members/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id parameter"})
			return
		}
		members, err := eng.GetMembers(uint32(id))
		if err != nil {
			if errors.Is(err, engine.ErrNotReady) {
				engineError(c, err)
			} else {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			}
			return
		}
		out := make([]gin.H, len(members))
		for i, m := range members {
			out[i] = gin.H{
				"id":     m.ID,
				"lat":    m.Position.Lat,
				"lng":    m.Position.Lng,
				"region": m.RegionID,
				"gender": m.Gender.String(),
				"age":    m.Age.String(),
			}
		}
		c.JSON(http.StatusOK, gin.H{"members": out})
	})

	// Zoom to jump to when a cluster is clicked
	r.GET("/api/members/:id/expansion", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id parameter"})
			return
		}
		zoom, err := eng.GetExpansionZoom(uint32(id))
		if err != nil {
			if errors.Is(err, engine.ErrNotReady) {
				engineError(c, err)
			} else {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"expansionZoom": zoom})
	})

	// Radius hit test around a map coordinate
	r.GET("/api/nearby", func(c *gin.Context) {
		lat, err := strconv.ParseFloat(c.Query("lat"), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lat parameter"})
			return
		}
		lng, err := strconv.ParseFloat(c.Query("lng"), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lng parameter"})
			return
		}
		radius, err := strconv.ParseFloat(c.Query("radius"), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid radius parameter"})
			return
		}
		hits, err := eng.FindNearby(lat, lng, radius)
		if err != nil {
			engineError(c, err)
			return
		}
		out := make([]gin.H, len(hits))
		for i, h := range hits {
			out[i] = gin.H{
				"id":     h.ID,
				"lat":    h.Position.Lat,
				"lng":    h.Position.Lng,
				"region": h.RegionID,
			}
		}
		c.JSON(http.StatusOK, gin.H{"hits": out})
	})

	// Frame telemetry from the render side; each reported frame ticks the governor
	r.POST("/api/telemetry/frame", func(c *gin.Context) {
		var req struct {
			Frames int `json:"frames"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Frames < 1 {
			req.Frames = 1
		}
		var fps float64
		for i := 0; i < req.Frames; i++ {
			fps = gov.Tick()
		}
		if m := gov.Metrics(); m.MemoryOK {
			leaks.Record(m.MemoryBytes)
		}
		c.JSON(http.StatusOK, gin.H{
			"fps":      fps,
			"settings": gov.Settings(),
		})
	})

	// Current quality state
	r.GET("/api/quality", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"device":   profile,
			"tier":     gov.Tier().String(),
			"settings": gov.Settings(),
			"metrics":  gov.Metrics(),
			"health":   gov.HealthScore(),
			"leaking":  leaks.Leaking(),
		})
	})

	// Regenerate the dataset from synthetic regions
	r.POST("/api/regions/generate", func(c *gin.Context) {
		var req struct {
			NumRegions     int `json:"numRegions"`
			CountPerRegion int `json:"countPerRegion"`
		}
		if err := c.BindJSON(&req); err != nil || req.NumRegions < 1 || req.CountPerRegion < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		bounds := geo.BBox{MinLat: 25.0, MaxLat: 49.0, MinLng: -125.0, MaxLng: -67.0}
		regions := dataset.GenerateTestRegions(req.NumRegions, req.CountPerRegion,
			bounds, cfg.GetInt64("engine.seed"))
		if err := eng.Rebuild(c.Request.Context(), regions); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entities": eng.Len()})
	})

	// Saved dataset generations
	r.GET("/api/snapshots", func(c *gin.Context) {
		snapshots, err := eng.ListSnapshots()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snapshots)
	})

	r.POST("/api/snapshots", func(c *gin.Context) {
		info, err := eng.SaveSnapshot()
		if err != nil {
			engineError(c, err)
			return
		}
		log.Info("snapshot saved via api",
			zap.String("id", info.ID),
			zap.String("size", formatFileSize(info.FileSize)))
		c.JSON(http.StatusOK, info)
	})

	r.POST("/api/snapshots/load/:id", func(c *gin.Context) {
		if err := eng.LoadSnapshot(c.Param("id")); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Snapshot loaded", "entities": eng.Len()})
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		addr := cfg.GetString("server.addr")
		log.Info("starting server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-quit
	log.Info("shutting down")

	// Persist the current generation so the next start can resume from it
	if eng.Ready() {
		if info, err := eng.SaveSnapshot(); err != nil {
			log.Error("failed to save snapshot on shutdown", zap.Error(err))
		} else {
			log.Info("snapshot saved on shutdown",
				zap.String("id", info.ID),
				zap.String("size", formatFileSize(info.FileSize)))
		}
	}
}
