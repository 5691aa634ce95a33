package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	companyID := os.Getenv("TAX_DEFAULT_COMPANY")
	if companyID == "" {
		companyID = "default"
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	log.Printf("Seeding company: %s", companyID)

	jurisIDs := seedJurisdictions(db, companyID)
	catIDs := seedCategories(db, companyID)
	seedRateDefinitions(db, companyID, jurisIDs, catIDs)
	seedUSFRates(db, companyID)
	seedExemptions(db, companyID, jurisIDs)

	log.Println("Seeding completed successfully!")
}

func seedJurisdictions(db *sql.DB, companyID string) map[string]int64 {
	jurisdictions := []struct {
		Name      string
		Level     string
		Countries []string
		States    []string
		Counties  []string
		Cities    []string
		Postal    []string
	}{
		{"United States", "federal", []string{"US"}, nil, nil, nil, nil},
		{"California", "state", []string{"US"}, []string{"CA"}, nil, nil, nil},
		{"New York", "state", []string{"US"}, []string{"NY"}, nil, nil, nil},
		{"Texas", "state", []string{"US"}, []string{"TX"}, nil, nil, nil},
		{"Los Angeles County", "county", []string{"US"}, []string{"CA"}, []string{"LOS ANGELES"}, nil, nil},
		{"City of Los Angeles", "city", []string{"US"}, []string{"CA"}, nil, []string{"LOS ANGELES"}, []string{"900*"}},
		{"New York City", "city", []string{"US"}, []string{"NY"}, nil, []string{"NEW YORK"}, nil},
	}

	fmt.Println("Seeding Jurisdictions...")
	ids := make(map[string]int64)
	for _, j := range jurisdictions {
		var id int64
		err := db.QueryRow(`
			INSERT INTO jurisdictions (company_id, name, level, countries, states, counties, cities, postal_patterns)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT DO NOTHING
			RETURNING id;
		`, companyID, j.Name, j.Level,
			pq.Array(strSlice(j.Countries)), pq.Array(strSlice(j.States)),
			pq.Array(strSlice(j.Counties)), pq.Array(strSlice(j.Cities)), pq.Array(strSlice(j.Postal))).Scan(&id)
		if err == sql.ErrNoRows {
			if err := db.QueryRow("SELECT id FROM jurisdictions WHERE company_id = $1 AND name = $2", companyID, j.Name).Scan(&id); err != nil {
				log.Printf("Failed to look up jurisdiction %s: %v", j.Name, err)
				continue
			}
		} else if err != nil {
			log.Printf("Failed to seed jurisdiction %s: %v", j.Name, err)
			continue
		}
		ids[j.Name] = id
	}
	return ids
}

func seedCategories(db *sql.DB, companyID string) map[string]int64 {
	categories := []struct {
		Name     string
		Services []string
		Priority int
		Taxable  bool
	}{
		{"Voice Services", []string{"local", "long_distance", "international"}, 10, true},
		{"VoIP Services", []string{"voip_fixed", "voip_nomadic"}, 20, true},
		{"Data Services", []string{"data"}, 30, true},
		{"Equipment Sales", []string{"equipment"}, 40, false},
	}

	fmt.Println("Seeding Tax Categories...")
	ids := make(map[string]int64)
	for _, c := range categories {
		var id int64
		err := db.QueryRow(`
			INSERT INTO tax_categories (company_id, name, service_types, priority, taxable)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT DO NOTHING
			RETURNING id;
		`, companyID, c.Name, pq.Array(c.Services), c.Priority, c.Taxable).Scan(&id)
		if err == sql.ErrNoRows {
			if err := db.QueryRow("SELECT id FROM tax_categories WHERE company_id = $1 AND name = $2", companyID, c.Name).Scan(&id); err != nil {
				log.Printf("Failed to look up category %s: %v", c.Name, err)
				continue
			}
		} else if err != nil {
			log.Printf("Failed to seed category %s: %v", c.Name, err)
			continue
		}
		ids[c.Name] = id
	}
	return ids
}

func seedRateDefinitions(db *sql.DB, companyID string, jurisIDs, catIDs map[string]int64) {
	rates := []struct {
		Jurisdiction string
		Category     string
		Name         string
		TaxType      string
		RateType     string
		Percentage   string
		Amount       string
		PerLine      bool
		Services     []string
		Level        string
		Priority     int
	}{
		{"United States", "Voice Services", "Federal TRS Fund", "relay_service", "percentage", "0.022", "0", false, []string{"local", "long_distance", "international"}, "federal", 20},
		{"California", "Voice Services", "CA 911 Surcharge", "e911", "fixed", "0", "0.30", true, []string{"local", "long_distance", "voip_fixed", "voip_nomadic"}, "state", 10},
		{"California", "Voice Services", "CA PUC User Fee", "state_tax", "percentage", "0.439", "0", false, []string{"local", "long_distance"}, "state", 20},
		{"California", "VoIP Services", "CA 911 Surcharge", "e911", "fixed", "0", "0.30", true, []string{"voip_fixed", "voip_nomadic"}, "state", 10},
		{"New York", "Voice Services", "NY Excise Tax", "state_tax", "percentage", "2.5", "0", false, []string{"local", "long_distance"}, "state", 10},
		{"Texas", "Voice Services", "TX USF Assessment", "state_tax", "percentage", "3.3", "0", false, []string{"local", "long_distance"}, "state", 10},
		{"Los Angeles County", "Voice Services", "LA County 911 Fee", "e911", "fixed", "0", "0.10", true, []string{"local", "voip_fixed"}, "county", 10},
		{"City of Los Angeles", "Voice Services", "LA Utility Users Tax", "local_tax", "percentage", "9", "0", false, []string{"local", "long_distance"}, "city", 10},
		{"New York City", "Voice Services", "NYC Surcharge", "local_tax", "percentage", "2.35", "0", false, []string{"local", "long_distance"}, "city", 10},
		{"United States", "Voice Services", "Number Pooling Fee", "number_pooling", "usage", "0", "0.0013", false, []string{"long_distance", "international"}, "federal", 30},
	}

	fmt.Println("Seeding Rate Definitions...")
	for _, r := range rates {
		jurisID, ok1 := jurisIDs[r.Jurisdiction]
		catID, ok2 := catIDs[r.Category]
		if !ok1 || !ok2 {
			log.Printf("Missing jurisdiction or category for rate %s", r.Name)
			continue
		}
		_, err := db.Exec(`
			INSERT INTO rate_definitions
				(company_id, jurisdiction_id, category_id, name, tax_type, rate_type,
				 percentage_rate, amount, per_line, service_types, level, priority)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT DO NOTHING;
		`, companyID, jurisID, catID, r.Name, r.TaxType, r.RateType,
			r.Percentage, r.Amount, r.PerLine, pq.Array(r.Services), r.Level, r.Priority)
		if err != nil {
			log.Printf("Failed to seed rate %s: %v", r.Name, err)
		}
	}
}

func seedUSFRates(db *sql.DB, companyID string) {
	// FCC quarterly contribution factors, as percentages.
	factors := []struct {
		Year    int
		Quarter int
		Rate    string
	}{
		{2025, 4, "36.6"},
		{2026, 1, "36.3"},
		{2026, 2, "36.9"},
		{2026, 3, "37.1"},
	}

	fmt.Println("Seeding USF Contribution Factors...")
	for _, f := range factors {
		_, err := db.Exec(`
			INSERT INTO usf_rates (company_id, year, quarter, rate)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (company_id, year, quarter) DO UPDATE SET rate = EXCLUDED.rate;
		`, companyID, f.Year, f.Quarter, f.Rate)
		if err != nil {
			log.Printf("Failed to seed USF factor %d-Q%d: %v", f.Year, f.Quarter, err)
		}
	}
}

func seedExemptions(db *sql.DB, companyID string, jurisIDs map[string]int64) {
	fmt.Println("Seeding Exemptions...")

	// Client 1001: federally recognised non-profit, fully exempt everywhere.
	_, err := db.Exec(`
		INSERT INTO exemptions (company_id, client_id, blanket, tax_types, relief_percent, valid_from, priority)
		VALUES ($1, 1001, TRUE, '{}', 100, NOW() - INTERVAL '1 year', 10)
		ON CONFLICT DO NOTHING;
	`, companyID)
	if err != nil {
		log.Printf("Failed to seed blanket exemption: %v", err)
	}

	// Client 1002: partial state-level relief in California.
	caID, ok := jurisIDs["California"]
	if !ok {
		log.Println("Skipping CA exemption seed: jurisdiction missing")
		return
	}
	_, err = db.Exec(`
		INSERT INTO exemptions (company_id, client_id, jurisdiction_id, tax_types, relief_percent, valid_from, priority)
		VALUES ($1, 1002, $2, $3, 50, NOW() - INTERVAL '6 months', 20)
		ON CONFLICT DO NOTHING;
	`, companyID, caID, pq.Array([]string{"state_tax", "e911"}))
	if err != nil {
		log.Printf("Failed to seed CA exemption: %v", err)
	}
}

func strSlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
