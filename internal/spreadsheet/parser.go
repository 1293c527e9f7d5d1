// Where: internal/spreadsheet/parser.go
// What: Parse .xlsx resource workbooks into canonical resources.
// Why: Spreadsheet batches seed sessions with complete resource definitions.
package spreadsheet

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/opsloom/iacpilot/internal/resource"
)

// MaxFileSize bounds accepted uploads.
const MaxFileSize = 10 << 20

// awsSheets and azureSheets are the recognized resource sheet names; any
// other sheet (README included) is skipped.
var awsSheets = map[string]bool{
	"AWS_EC2": true, "AWS_VPC": true, "AWS_Subnet": true, "AWS_SecurityGroup": true,
	"AWS_S3": true, "AWS_RDS": true, "AWS_InternetGateway": true, "AWS_NATGateway": true,
	"AWS_ElasticIP": true, "AWS_LoadBalancer": true, "AWS_TargetGroup": true,
}

var azureSheets = map[string]bool{
	"Azure_VM": true, "Azure_VNet": true, "Azure_Subnet": true, "Azure_NSG": true,
	"Azure_Storage": true, "Azure_SQL": true, "Azure_PublicIP": true,
	"Azure_NATGateway": true, "Azure_LoadBalancer": true, "Azure_ResourceGroup": true,
}

// listFields arrive as comma-joined cells and must materialize as lists.
var listFields = map[string]bool{
	"Subnets": true, "SecurityGroups": true, "SecurityGroupIds": true,
	"AddressSpace": true, "DnsServers": true, "ServiceEndpoints": true,
	"BlobContainers": true, "Targets": true, "BackendPoolResources": true,
}

// Result is the ingestion outcome for one workbook.
type Result struct {
	Success       bool                `json:"success"`
	ResourceCount int                 `json:"resource_count"`
	ResourceTypes []string            `json:"resource_types"`
	Resources     []resource.Resource `json:"resources"`
	Errors        []string            `json:"errors,omitempty"`
	Warnings      []string            `json:"warnings,omitempty"`
}

// Parser ingests workbooks, collecting errors and warnings per parse.
type Parser struct {
	errors   []string
	warnings []string
}

// NewParser returns a fresh parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads an .xlsx workbook and extracts one canonical resource per data
// row of every recognized sheet. Safe defaults, guardrails, and the metadata
// tag mirror run here so downstream stages see finished resources.
func (p *Parser) Parse(content []byte) Result {
	p.errors = nil
	p.warnings = nil

	if len(content) > MaxFileSize {
		p.errors = append(p.errors, fmt.Sprintf("file exceeds %d byte limit", MaxFileSize))
		return p.result(nil, nil)
	}

	book, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("failed to parse workbook: %v", err))
		return p.result(nil, nil)
	}
	defer book.Close()

	var resources []resource.Resource
	var sheetTypes []string

	for _, sheet := range book.GetSheetList() {
		platform := sheetPlatform(sheet)
		if platform == "" {
			if !strings.EqualFold(sheet, "README") {
				p.warnings = append(p.warnings, "skipping unknown sheet: "+sheet)
			}
			continue
		}
		parsed := p.parseSheet(book, sheet, platform)
		if len(parsed) > 0 {
			resources = append(resources, parsed...)
			sheetTypes = append(sheetTypes, sheet)
		}
	}

	return p.result(resources, sheetTypes)
}

func (p *Parser) result(resources []resource.Resource, types []string) Result {
	return Result{
		Success:       len(p.errors) == 0,
		ResourceCount: len(resources),
		ResourceTypes: types,
		Resources:     resources,
		Errors:        p.errors,
		Warnings:      p.warnings,
	}
}

func sheetPlatform(sheet string) resource.Platform {
	switch {
	case awsSheets[sheet]:
		return resource.PlatformAWS
	case azureSheets[sheet]:
		return resource.PlatformAzure
	}
	return ""
}

func (p *Parser) parseSheet(book *excelize.File, sheet string, platform resource.Platform) []resource.Resource {
	rows, err := book.GetRows(sheet)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("sheet %s: %v", sheet, err))
		return nil
	}
	if len(rows) == 0 {
		p.errors = append(p.errors, fmt.Sprintf("sheet %s: no headers found", sheet))
		return nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		// Required-field markers (*) are presentation only.
		headers[i] = strings.TrimRight(strings.TrimSpace(h), "*")
	}

	kind := sheet
	if idx := strings.Index(sheet, "_"); idx >= 0 {
		kind = sheet[idx+1:]
	}
	normalizedType := resource.NormalizeType(kind, platform)

	var out []resource.Resource
	for rowIdx, row := range rows[1:] {
		if rowEmpty(row) {
			continue
		}
		props := map[string]any{}
		name := ""
		for col, cell := range row {
			if col >= len(headers) || headers[col] == "" {
				continue
			}
			header := headers[col]
			value := strings.TrimSpace(cell)
			if value == "" {
				continue
			}
			if header == "ResourceName" {
				name = value
			}
			converted := p.convertCell(header, value)
			if listFields[header] {
				converted = splitList(converted)
			}
			props[header] = converted
		}

		if name == "" {
			p.warnings = append(p.warnings, fmt.Sprintf(
				"sheet %s, row %d: missing ResourceName, skipping row", sheet, rowIdx+2))
			continue
		}

		p.injectSafeDefaults(normalizedType, props)
		p.applyGuardrails(normalizedType, sheet, rowIdx+2, name, props)
		resource.MirrorMetadataTags(props)

		r := resource.Resource{
			Type:       normalizedType,
			Platform:   platform,
			Name:       name,
			Properties: props,
		}
		r.Normalize()

		if errs := validateResource(r); len(errs) > 0 {
			for _, e := range errs {
				p.warnings = append(p.warnings, fmt.Sprintf(
					"sheet %s, row %d (%s): %s", sheet, rowIdx+2, name, e))
			}
		}
		out = append(out, r)
	}
	return out
}

// injectSafeDefaults applies the security defaults at ingestion time so
// templates never have to decide them.
func (p *Parser) injectSafeDefaults(normalizedType string, props map[string]any) {
	switch normalizedType {
	case "aws_s3":
		if _, ok := props["PublicAccess"]; !ok {
			props["PublicAccess"] = false
		}
	case "azure_storage":
		if _, ok := props["EnableHttpsTrafficOnly"]; !ok {
			props["EnableHttpsTrafficOnly"] = true
		}
		if _, ok := props["MinTlsVersion"]; !ok {
			props["MinTlsVersion"] = "TLS1_2"
		}
	}
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func splitList(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if !strings.Contains(s, ",") {
		return []any{s}
	}
	var out []any
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
