package registry

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `code,name,sector,scope,phase,project_total,approval_instance,approval_date,executing_entity,entity_nit,contracts_value,contract_count,scheduled_start,scheduled_end,total_payments,lat,lon,physical_progress,financial_progress
2021000100123,Puente vehicular sobre el rio Cauca,Transporte,Municipal,En ejecucion,$12.500.000.000,OCAD Regional,2021-03-15,Alcaldia de Cali,890399011-3,$11.800.000.000,4,2021-06-01,2024-12-31,$5.200.000.000,3°27'26.71"N,76°31'42.28"W,45%,38%
2022000200456,Via terciaria vereda El Placer,Transporte,,,,,,,,,,,,,2°26'39.12"N,76°36'20.04"W,,
2023000300789,Acueducto municipal,Agua potable,Municipal,Terminado,$3.100.000.000,OCAD Paz,2023-01-20,Empresa de servicios de Quibdo,818000456-1,$3.000.000.000,2,2023-02-01,2023-11-30,$3.000.000.000,,
`

func TestLookup(t *testing.T) {
	r, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	p, err := r.Lookup("2021000100123")
	require.NoError(t, err)
	assert.Equal(t, "Puente vehicular sobre el rio Cauca", p.Name)
	assert.Equal(t, "Transporte", p.Sector)
	assert.Equal(t, "Municipal", p.Scope)
	assert.Equal(t, "En ejecucion", p.Phase)
	assert.Equal(t, "OCAD Regional", p.ApprovalInstance)
	assert.Equal(t, "2021-03-15", p.ApprovalDate)
	assert.Equal(t, "Alcaldia de Cali", p.ExecutingEntity)
	assert.Equal(t, "890399011-3", p.EntityNIT)
	assert.Equal(t, "$11.800.000.000", p.ContractsValue)
	assert.Equal(t, "4", p.ContractCount)
	assert.Equal(t, "2021-06-01", p.ScheduledStart)
	assert.Equal(t, "2024-12-31", p.ScheduledEnd)
	assert.Equal(t, "$5.200.000.000", p.TotalPayments)
	assert.Equal(t, `3°27'26.71"N`, p.LatDMS)
	assert.Equal(t, "45%", p.PhysicalProgress)
	assert.True(t, p.HasCoordinates())
}

func TestLookupUnknownCode(t *testing.T) {
	r, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	_, err = r.Lookup("9999999999999")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestBlankCellsGetPlaceholder(t *testing.T) {
	r, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	p, err := r.Lookup("2022000200456")
	require.NoError(t, err)
	assert.Equal(t, Placeholder, p.Scope)
	assert.Equal(t, Placeholder, p.Phase)
	assert.Equal(t, Placeholder, p.ExecutingEntity)
	assert.Equal(t, Placeholder, p.TotalPayments)
	assert.Equal(t, Placeholder, p.PhysicalProgress)
}

// Each descriptive column must surface under its own key so the dashboard's
// info cards can address them directly.
func TestFieldsKeepTheirOwnJSONKeys(t *testing.T) {
	r, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	p, err := r.Lookup("2021000100123")
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	var out map[string]string
	require.NoError(t, json.Unmarshal(raw, &out))

	assert.Equal(t, "Transporte", out["sector"])
	assert.Equal(t, "Municipal", out["scope"])
	assert.Equal(t, "En ejecucion", out["phase"])
	assert.Equal(t, "OCAD Regional", out["approval_instance"])
	assert.Equal(t, "890399011-3", out["entity_nit"])
	assert.Equal(t, "4", out["contract_count"])
	for _, key := range []string{"project_total", "approval_date", "executing_entity", "contracts_value", "scheduled_start", "scheduled_end", "total_payments"} {
		assert.Contains(t, out, key)
	}
}

func TestMissingCoordinates(t *testing.T) {
	r, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	p, err := r.Lookup("2023000300789")
	require.NoError(t, err)
	assert.False(t, p.HasCoordinates())
	assert.Empty(t, p.LatDMS)
}

func TestCodes(t *testing.T) {
	r, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	codes := r.Codes()
	sort.Strings(codes)
	assert.Equal(t, []string{"2021000100123", "2022000200456", "2023000300789"}, codes)
}

func TestRowWithoutCodeIsRejected(t *testing.T) {
	_, err := Parse(strings.NewReader("code,name\n,missing\n"))
	assert.Error(t, err)
}

func TestEmptyRegistry(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.Error(t, err)
}
