package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"agency-checkout/internal/config"
	"agency-checkout/internal/domain/model"
	pg "agency-checkout/internal/infra/db/postgres"
	"agency-checkout/internal/infra/logging"
	"agency-checkout/internal/usecase"
)

type seedPlan struct {
	ID          string
	Title       string
	Description string
	Price       string
	Features    []string
	Popular     bool
}

var catalog = []seedPlan{
	{"landing", "Landing Page", "Una página de aterrizaje lista para campañas.", "25.00",
		[]string{"1 página", "Formulario de contacto", "Diseño responsive"}, false},
	{"business", "Sitio Empresarial", "Sitio corporativo de hasta 5 secciones.", "149.99",
		[]string{"5 secciones", "Blog", "SEO básico", "Dominio por 1 año"}, true},
	{"ecommerce", "Tienda Online", "Catálogo y pagos en línea.", "399.00",
		[]string{"Catálogo ilimitado", "Pasarela de pagos", "Panel de pedidos"}, false},
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	force := flag.Bool("force", false, "upsert catalog plans even if plans already exist")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	planUC := usecase.NewPlanUseCase(pg.NewPostgresPlanRepo(pool), logger)

	// If plans already exist, do nothing
	existing, err := planUC.List(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("list plans")
	}
	if len(existing) > 0 && !*force {
		fmt.Printf("%d plans already present. No changes.\n", len(existing))
		for _, p := range existing {
			fmt.Printf("  - %s %q price=%s USD\n", p.ID, p.Title, p.Price.StringFixed(2))
		}
		return
	}

	for _, s := range catalog {
		p, err := model.NewPlan(s.ID, s.Title, s.Description, decimal.RequireFromString(s.Price), s.Features, s.Popular)
		if err != nil {
			logger.Fatal().Err(err).Str("plan_id", s.ID).Msg("build plan")
		}
		if err := planUC.Save(ctx, p); err != nil {
			logger.Fatal().Err(err).Str("plan_id", s.ID).Msg("save plan")
		}
		fmt.Printf("seeded %s (%s USD)\n", p.ID, p.Price.StringFixed(2))
	}
}
