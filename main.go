package main

import (
	"fmt"
	"os"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"tessera/admin"
	"tessera/cache"
	"tessera/common"
	"tessera/config"
	"tessera/content"
	"tessera/database"
	"tessera/layout"
	"tessera/logging"
	"tessera/media"
	"tessera/pages"
	"tessera/query"
	"tessera/render"
	"tessera/schema"
	"tessera/site"
	"tessera/widgets"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:           "tessera",
	Short:         "Page composition CMS",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API and the public site",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "directory holding tessera.yaml")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func open() (*config.Config, *gorm.DB, zerolog.Logger, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	db, err := common.ConnectDb(cfg.DatabasePath, log)
	if err != nil {
		return nil, nil, log, err
	}
	if err := database.RunMigrations(db, log); err != nil {
		return nil, nil, log, fmt.Errorf("run migrations: %w", err)
	}
	return cfg, db, log, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	_, _, log, err := open()
	if err != nil {
		return err
	}
	log.Info().Msg("migrations applied")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, db, log, err := open()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lm := layout.NewManager(db, log)
	catalog := widgets.NewCatalog(db, log)
	items := content.NewStore(db, media.NewDiskStore(db, cfg.MediaDir, cfg.MediaBaseURL, log), log)
	queries := query.NewEngine(db, log)
	composer := pages.NewComposer(db, catalog, log)
	views := render.NewTemplateRenderer(cfg.ViewsDir)
	pipeline := render.NewPipeline(db, render.Services{
		Content: items,
		Catalog: catalog,
		Layout:  lm,
		Queries: queries,
		Assets:  layout.ManifestAssets{Root: cfg.ThemesDir},
	}, views, log)
	pageCache := cache.NewStore(cfg.CacheDir, cfg.CacheMaxAge, log)
	if err := pageCache.Prune(); err != nil {
		log.Warn().Err(err).Msg("cache prune failed")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinLogger(log))

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   false,
	})
	router.Use(sessions.Sessions("tessera-session", store))

	router.Static("/public/media", cfg.MediaDir)
	router.Static("/public/themes", cfg.ThemesDir)

	admin.NewAdminModule(admin.Services{
		Schema:   schema.NewRegistry(db, log),
		Content:  items,
		Layout:   lm,
		Composer: composer,
		Catalog:  catalog,
		Queries:  queries,
		Pipeline: pipeline,
		Cache:    pageCache,
	}, log).RegisterRoutes(router)
	site.NewSiteModule(composer, pipeline, lm, pageCache, log).RegisterRoutes(router)

	log.Info().Str("port", cfg.Port).Msg("starting server")
	return router.Run(":" + cfg.Port)
}
