package model

type SessionKind string

const (
	Practice       SessionKind = "PRACTICE"
	Qualifying     SessionKind = "QUALIFYING"
	Warmup         SessionKind = "WARMUP"
	Race           SessionKind = "RACE"
	SessionUnknown SessionKind = "UNKNOWN"
)

type FlagState string

const (
	FlagGreen            FlagState = "GREEN"
	FlagYellow           FlagState = "YELLOW"
	FlagFullCourseYellow FlagState = "FULL_COURSE_YELLOW"
	FlagSafetyCar        FlagState = "SAFETY_CAR"
	FlagRed              FlagState = "RED"
	FlagChequered        FlagState = "CHEQUERED"
	FlagNone             FlagState = "NONE"
)

type CarClass string

const (
	Hypercar     CarClass = "HYPERCAR"
	LMP2         CarClass = "LMP2"
	LMP3         CarClass = "LMP3"
	LMGT3        CarClass = "LMGT3"
	GTE          CarClass = "GTE"
	ClassUnknown CarClass = "UNKNOWN"
)

type TyreCompound string

const (
	TyreSoft    TyreCompound = "SOFT"
	TyreMedium  TyreCompound = "MEDIUM"
	TyreHard    TyreCompound = "HARD"
	TyreWet     TyreCompound = "WET"
	TyreUnknown TyreCompound = "UNKNOWN"
)

type DriverStatus string

const (
	Racing        DriverStatus = "RACING"
	Pitting       DriverStatus = "PITTING"
	Retired       DriverStatus = "RETIRED"
	Finished      DriverStatus = "FINISHED"
	Disqualified  DriverStatus = "DISQUALIFIED"
	StatusUnknown DriverStatus = "UNKNOWN"
)

type PenaltyKind string

const (
	DriveThrough     PenaltyKind = "DRIVE_THROUGH"
	StopAndGo        PenaltyKind = "STOP_AND_GO"
	TimePenalty      PenaltyKind = "TIME_PENALTY"
	Disqualification PenaltyKind = "DISQUALIFICATION"
)

type ConnectionStatus string

const (
	Connected    ConnectionStatus = "CONNECTED"
	Connecting   ConnectionStatus = "CONNECTING"
	Disconnected ConnectionStatus = "DISCONNECTED"
	Error        ConnectionStatus = "ERROR"
)
