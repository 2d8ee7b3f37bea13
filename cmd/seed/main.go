package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/livestockmart/internal/account"
	"github.com/vasiliy-maslov/livestockmart/internal/catalog"
	"github.com/vasiliy-maslov/livestockmart/internal/config"
	"github.com/vasiliy-maslov/livestockmart/internal/storage"
	"gopkg.in/yaml.v3"
)

type seedListing struct {
	Name         string   `yaml:"name"`
	Category     string   `yaml:"category"`
	Breed        string   `yaml:"breed"`
	Age          string   `yaml:"age"`
	Price        float64  `yaml:"price"`
	Image        string   `yaml:"image"`
	Description  string   `yaml:"description"`
	Weight       string   `yaml:"weight"`
	HealthStatus string   `yaml:"healthStatus"`
	Tags         []string `yaml:"tags"`
	Status       string   `yaml:"status"`
	Quantity     int      `yaml:"quantity"`
}

type seedAddress struct {
	Label   string `yaml:"label"`
	Name    string `yaml:"name"`
	Line1   string `yaml:"line1"`
	Line2   string `yaml:"line2"`
	City    string `yaml:"city"`
	State   string `yaml:"state"`
	Pincode string `yaml:"pincode"`
	Phone   string `yaml:"phone"`
}

type seedAccount struct {
	Name      string        `yaml:"name"`
	Email     string        `yaml:"email"`
	Password  string        `yaml:"password"`
	Role      string        `yaml:"role"`
	Addresses []seedAddress `yaml:"addresses"`
}

type seedFile struct {
	Listings []seedListing `yaml:"listings"`
	Accounts []seedAccount `yaml:"accounts"`
}

func loadSeed(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

func seedListings(ctx context.Context, svc catalog.Service, listings []seedListing, reset bool) error {
	existing, err := svc.ListListings(ctx, catalog.Filter{})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		if !reset {
			log.Info().Int("count", len(existing)).Msg("Livestock already present, skipping (use -reset to replace)")
			return nil
		}
		for _, l := range existing {
			if err := svc.DeleteListing(ctx, l.ID); err != nil {
				return fmt.Errorf("failed to delete listing %s: %w", l.ID, err)
			}
		}
		log.Info().Int("count", len(existing)).Msg("Removed existing livestock")
	}

	for _, l := range listings {
		created, err := svc.CreateListing(ctx, catalog.ListingInput{
			Name:         l.Name,
			Category:     catalog.Category(l.Category),
			Breed:        l.Breed,
			Age:          l.Age,
			Price:        l.Price,
			Image:        l.Image,
			Description:  l.Description,
			Weight:       l.Weight,
			HealthStatus: l.HealthStatus,
			Tags:         l.Tags,
			Status:       catalog.Status(l.Status),
			Quantity:     l.Quantity,
		})
		if err != nil {
			return fmt.Errorf("failed to create listing %q: %w", l.Name, err)
		}
		log.Info().Stringer("id", created.ID).Str("name", created.Name).Msg("Livestock seeded")
	}
	return nil
}

func seedAccounts(ctx context.Context, svc account.Service, accounts []seedAccount) error {
	for _, a := range accounts {
		created, err := svc.Register(ctx, account.RegisterInput{
			Name:     a.Name,
			Email:    a.Email,
			Password: a.Password,
			Role:     account.Role(a.Role),
		})
		if errors.Is(err, account.ErrEmailExists) {
			log.Info().Str("email", a.Email).Msg("Account already exists, skipping")
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to create account %s: %w", a.Email, err)
		}

		if len(a.Addresses) > 0 {
			state := account.State{Addresses: make([]account.Address, 0, len(a.Addresses))}
			for _, addr := range a.Addresses {
				state.Addresses = append(state.Addresses, account.Address(addr))
			}
			if _, err := svc.SaveState(ctx, created.ID, state); err != nil {
				return fmt.Errorf("failed to save addresses for %s: %w", a.Email, err)
			}
		}
		log.Info().Str("email", created.Email).Str("role", string(created.Role)).Msg("Account seeded")
	}
	return nil
}

func run(seedPath string, reset bool) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	seed, err := loadSeed(seedPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	repos, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	defer repos.Close()

	catalogSvc := catalog.NewService(repos.Catalog)
	accountSvc := account.NewService(repos.Accounts, catalogSvc)

	if err := seedListings(ctx, catalogSvc, seed.Listings, reset); err != nil {
		return err
	}
	return seedAccounts(ctx, accountSvc, seed.Accounts)
}

func main() {
	seedPath := flag.String("file", "seed/livestock.yaml", "path to the seed data file")
	reset := flag.Bool("reset", false, "replace existing livestock listings")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := run(*seedPath, *reset); err != nil {
		log.Fatal().Err(err).Msg("Database seeding failed")
	}
	log.Info().Msg("Database seeding completed")
}
