package review

const (
	AreaADAParatransit      = "Americans with Disabilities Act (ADA) - Complementary Paratransit"
	AreaADAGeneral          = "Americans with Disabilities Act (ADA) - General"
	AreaCharterBus          = "Charter Bus"
	AreaCybersecurity       = "Cybersecurity"
	AreaDrugAlcohol         = "Drug and Alcohol Program"
	AreaDrugFreeWorkplace   = "Drug-Free Workplace Act"
	AreaFinancialManagement = "Financial Management and Capacity"
	AreaLegal               = "Legal"
	AreaMaintenance         = "Maintenance"
	AreaProcurement         = "Procurement"
	AreaPTASP               = "Public Transportation Agency Safety Plan (PTASP)"
	AreaContinuingControl   = "Satisfactory Continuing Control"
	AreaSchoolBus           = "School Bus"
	AreaSection5307         = "Section 5307 Program Requirements"
	AreaSection5310         = "Section 5310 Program Requirements"
	AreaSection5311         = "Section 5311 Program Requirements"
	AreaAwardManagement     = "Technical Capacity - Award Management"
	AreaProgramManagement   = "Technical Capacity - Program Management and Subrecipient Oversight"
	AreaProjectManagement   = "Technical Capacity - Project Management"
	AreaTitleVI             = "Title VI"
	AreaTransitAssetMgmt    = "Transit Asset Management"
)

// DefaultAreas returns the FY26 review areas in report order.
func DefaultAreas() []string {
	return []string{
		AreaADAParatransit,
		AreaADAGeneral,
		AreaCharterBus,
		AreaCybersecurity,
		AreaDrugAlcohol,
		AreaDrugFreeWorkplace,
		AreaFinancialManagement,
		AreaLegal,
		AreaMaintenance,
		AreaProcurement,
		AreaPTASP,
		AreaContinuingControl,
		AreaSchoolBus,
		AreaSection5307,
		AreaSection5310,
		AreaSection5311,
		AreaAwardManagement,
		AreaProgramManagement,
		AreaProjectManagement,
		AreaTitleVI,
		AreaTransitAssetMgmt,
	}
}

var defaultPrefixes = map[string]string{
	"LEGAL":                                    AreaLegal,
	"FINANCIAL MANAGEMENT":                     AreaFinancialManagement,
	"FINANCIAL MANAGEMENT AND CAPACITY":        AreaFinancialManagement,
	"TECHNICAL CAPACITY - AWARD MANAGEMENT":    AreaAwardManagement,
	"TECHNICAL CAPACITY PROGRAM MANAGEMENT":    AreaProgramManagement,
	"TECHNICAL CAPACITY PROJECT MANAGEMENT":    AreaProjectManagement,
	"TRANSIT ASSET MANAGEMENT":                 AreaTransitAssetMgmt,
	"SATISFACTORY CONTINUING CONTROL":          AreaContinuingControl,
	"MAINTENANCE":                              AreaMaintenance,
	"PROCUREMENT":                              AreaProcurement,
	"TITLE VI":                                 AreaTitleVI,
	"ADA GENERAL":                              AreaADAGeneral,
	"ADA COMPLEMENTARY PARATRANSIT":            AreaADAParatransit,
	"SCHOOL BUS":                               AreaSchoolBus,
	"CHARTER BUS":                              AreaCharterBus,
	"DRUG-FREE WORKPLACE ACT":                  AreaDrugFreeWorkplace,
	"DRUG AND ALCOHOL PROGRAM":                 AreaDrugAlcohol,
	"SECTION 5307 PROGRAM REQUIREMENTS":        AreaSection5307,
	"SECTION 5310 PROGRAM REQUIREMENTS":        AreaSection5310,
	"SECTION 5311 PROGRAM REQUIREMENTS":        AreaSection5311,
	"PUBLIC TRANSPORTATION AGENCY SAFETY PLAN": AreaPTASP,
	"PTASP":                                    AreaPTASP,
	"CYBERSECURITY":                            AreaCybersecurity,
}
