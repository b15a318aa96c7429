// Package registry loads the project master list: one row per public works
// project, keyed by its national investment code.
package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var ErrProjectNotFound = errors.New("project not found in registry")

// Placeholder stands in for registry cells left blank.
const Placeholder = "—"

// Project is one registry row, carrying the descriptive fields the register
// tracks per project: sector, scope, phase, approval data, the executing
// entity, contract totals, the scheduled window and payments, plus reported
// advance percentages. Coordinate fields hold DMS strings as they appear in
// the source registry, e.g. 3°27'26.71"N.
type Project struct {
	Code             string `json:"code"`
	Name             string `json:"name"`
	Sector           string `json:"sector"`
	Scope            string `json:"scope"`
	Phase            string `json:"phase"`
	ProjectTotal     string `json:"project_total"`
	ApprovalInstance string `json:"approval_instance"`
	ApprovalDate     string `json:"approval_date"`
	ExecutingEntity  string `json:"executing_entity"`
	EntityNIT        string `json:"entity_nit"`
	ContractsValue   string `json:"contracts_value"`
	ContractCount    string `json:"contract_count"`
	ScheduledStart   string `json:"scheduled_start"`
	ScheduledEnd     string `json:"scheduled_end"`
	TotalPayments    string `json:"total_payments"`
	LatDMS           string `json:"lat_dms"`
	LonDMS           string `json:"lon_dms"`

	// Reported advance percentages, kept as the registry's free-form text.
	PhysicalProgress  string `json:"physical_progress"`
	FinancialProgress string `json:"financial_progress"`
}

// Registry is an in-memory lookup table, loaded once at startup. Registry
// files are small, a few thousand rows at most.
type Registry struct {
	byCode map[string]Project
}

// Load reads a registry CSV. The expected header is
// code,name,sector,scope,phase,project_total,approval_instance,
// approval_date,executing_entity,entity_nit,contracts_value,contract_count,
// scheduled_start,scheduled_end,total_payments,lat,lon,physical_progress,
// financial_progress; column order is fixed but trailing columns may be
// absent.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry %s: %w", path, err)
	}
	defer f.Close()

	r, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
	}
	return r, nil
}

// Parse reads registry rows from a CSV stream.
func Parse(src io.Reader) (*Registry, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	// DMS coordinates carry a bare seconds marker (e.g. 3°27'26.71"N) in
	// unquoted cells; accept them rather than abort the whole load.
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("registry is empty")
	}

	byCode := make(map[string]Project, len(rows)-1)
	for i, row := range rows[1:] {
		code := strings.TrimSpace(cell(row, 0))
		if code == "" {
			return nil, fmt.Errorf("registry row %d has no project code", i+2)
		}
		byCode[code] = Project{
			Code:             code,
			Name:             cellOrPlaceholder(row, 1),
			Sector:           cellOrPlaceholder(row, 2),
			Scope:            cellOrPlaceholder(row, 3),
			Phase:            cellOrPlaceholder(row, 4),
			ProjectTotal:     cellOrPlaceholder(row, 5),
			ApprovalInstance: cellOrPlaceholder(row, 6),
			ApprovalDate:     cellOrPlaceholder(row, 7),
			ExecutingEntity:  cellOrPlaceholder(row, 8),
			EntityNIT:        cellOrPlaceholder(row, 9),
			ContractsValue:   cellOrPlaceholder(row, 10),
			ContractCount:    cellOrPlaceholder(row, 11),
			ScheduledStart:   cellOrPlaceholder(row, 12),
			ScheduledEnd:     cellOrPlaceholder(row, 13),
			TotalPayments:    cellOrPlaceholder(row, 14),
			LatDMS:           strings.TrimSpace(cell(row, 15)),
			LonDMS:           strings.TrimSpace(cell(row, 16)),

			PhysicalProgress:  cellOrPlaceholder(row, 17),
			FinancialProgress: cellOrPlaceholder(row, 18),
		}
	}
	return &Registry{byCode: byCode}, nil
}

// Lookup finds a project by code.
func (r *Registry) Lookup(code string) (Project, error) {
	p, ok := r.byCode[strings.TrimSpace(code)]
	if !ok {
		return Project{}, fmt.Errorf("%w: %s", ErrProjectNotFound, code)
	}
	return p, nil
}

// Codes returns every registered project code.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.byCode))
	for code := range r.byCode {
		codes = append(codes, code)
	}
	return codes
}

// HasCoordinates reports whether the project row carries a usable location.
func (p Project) HasCoordinates() bool {
	return p.LatDMS != "" && p.LonDMS != ""
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}

func cellOrPlaceholder(row []string, i int) string {
	v := strings.TrimSpace(cell(row, i))
	if v == "" {
		return Placeholder
	}
	return v
}
