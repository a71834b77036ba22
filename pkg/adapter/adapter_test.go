package adapter_test

import (
	"testing"

	"racedirector/pkg/adapter"
	"racedirector/pkg/model"
	"racedirector/pkg/raw"

	"github.com/smartystreets/goconvey/convey"
)

func object(t *testing.T, payload string) raw.Object {
	t.Helper()
	o, err := raw.DecodeObject([]byte(payload))
	if err != nil {
		t.Fatalf("decoding %s: %v", payload, err)
	}
	return o
}

func objects(t *testing.T, payload string) []raw.Object {
	t.Helper()
	o, err := raw.DecodeArray([]byte(payload))
	if err != nil {
		t.Fatalf("decoding %s: %v", payload, err)
	}
	return o
}

func lmu(t *testing.T) adapter.Adapter {
	a, found := adapter.Lookup(adapter.LMU)
	if !found {
		t.Fatal("lmu adapter not registered")
	}
	return a
}

func rf2(t *testing.T) adapter.Adapter {
	a, found := adapter.Lookup(adapter.RF2)
	if !found {
		t.Fatal("rf2 adapter not registered")
	}
	return a
}

func TestLMUSession(t *testing.T) {
	convey.Convey("Given the lmu adapter", t, func() {
		a := lmu(t)

		convey.Convey("When the session has no lap limit and no direct remaining time", func() {
			s := object(t, `{"session":"RACE1","trackName":"Sebring","maximumLaps":4294967295,
				"currentEventTime":120,"timeRemainingInGamePhase":-1,"maxTime":3600,
				"yellowFlagState":"NONE","sectorFlag":["GREEN","GREEN","GREEN"]}`)
			snap := a.Normalize(s, nil)

			convey.Convey("Then total laps is unlimited and remaining time is derived from max time", func() {
				convey.So(snap.Session.TotalLaps, convey.ShouldEqual, 0)
				convey.So(snap.Session.Unlimited(), convey.ShouldBeTrue)
				convey.So(snap.Session.TimeRemaining, convey.ShouldEqual, 3480)
				convey.So(snap.Session.SessionTime, convey.ShouldEqual, 120)
				convey.So(snap.Session.Kind, convey.ShouldEqual, model.Race)
				convey.So(snap.Session.Flag, convey.ShouldEqual, model.FlagGreen)
				convey.So(snap.Session.TrackName, convey.ShouldEqual, "Sebring")
			})

			convey.Convey("Then with no vehicles the current lap is 0 and the session is inactive", func() {
				convey.So(snap.Session.CurrentLap, convey.ShouldEqual, 0)
				convey.So(snap.Session.NumCars, convey.ShouldEqual, 0)
				convey.So(snap.Session.Active, convey.ShouldBeFalse)
				convey.So(snap.Standings, convey.ShouldNotBeNil)
				convey.So(snap.Standings, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When max laps is a real limit or zero", func() {
			limited := a.Normalize(object(t, `{"maximumLaps":24}`), nil)
			zero := a.Normalize(object(t, `{"maximumLaps":0}`), nil)

			convey.Convey("Then the limit is kept and zero means unlimited", func() {
				convey.So(limited.Session.TotalLaps, convey.ShouldEqual, 24)
				convey.So(zero.Session.TotalLaps, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When remaining time inputs are negative or missing", func() {
			direct := a.Normalize(object(t, `{"timeRemainingInGamePhase":600,"maxTime":3600,"currentEventTime":10}`), nil)
			past := a.Normalize(object(t, `{"currentEventTime":4000,"maxTime":3600}`), nil)
			endOnly := a.Normalize(object(t, `{"currentEventTime":100,"endEventTime":700}`), nil)
			missing := a.Normalize(object(t, `{"timeRemainingInGamePhase":"soon"}`), nil)

			convey.Convey("Then the direct value wins and nothing goes below zero", func() {
				convey.So(direct.Session.TimeRemaining, convey.ShouldEqual, 600)
				convey.So(past.Session.TimeRemaining, convey.ShouldEqual, 0)
				convey.So(endOnly.Session.TimeRemaining, convey.ShouldEqual, 600)
				convey.So(missing.Session.TimeRemaining, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the global flag says NONE but a sector is yellow", func() {
			snap := a.Normalize(object(t, `{"yellowFlagState":"NONE","sectorFlag":["GREEN","LOCAL_YELLOW","GREEN"]}`), nil)

			convey.Convey("Then the flag is YELLOW", func() {
				convey.So(snap.Session.Flag, convey.ShouldEqual, model.FlagYellow)
			})
		})

		convey.Convey("When the global flag is mapped through the table", func() {
			cases := map[string]model.FlagState{
				"PENDING":    model.FlagYellow,
				"resume":     model.FlagYellow,
				"FULLCOURSE": model.FlagFullCourseYellow,
				"SAFETYCAR":  model.FlagSafetyCar,
				"WHATEVER":   model.FlagNone,
			}
			for state, want := range cases {
				snap := a.Normalize(raw.Object{"yellowFlagState": state}, nil)
				convey.So(snap.Session.Flag, convey.ShouldEqual, want)
			}
		})

		convey.Convey("When session names vary", func() {
			cases := map[string]model.SessionKind{
				"PRACTICE1": model.Practice,
				"qualify2":  model.Qualifying,
				"WARMUP":    model.Warmup,
				"Race1":     model.Race,
				"TESTDAY":   model.Practice,
				"HOTLAP":    model.SessionUnknown,
				"":          model.SessionUnknown,
			}
			for name, want := range cases {
				snap := a.Normalize(raw.Object{"session": name}, nil)
				convey.So(snap.Session.Kind, convey.ShouldEqual, want)
			}
		})

		convey.Convey("When the payload carries fields of the wrong type", func() {
			s := object(t, `{"session":7,"trackName":["x"],"maximumLaps":"lots","currentEventTime":null,
				"yellowFlagState":{"a":1},"sectorFlag":"YELLOW","numberOfVehicles":"two"}`)

			convey.Convey("Then defaults are used and nothing panics", func() {
				convey.So(func() { a.Normalize(s, []raw.Object{{"position": "first"}}) }, convey.ShouldNotPanic)
				snap := a.Normalize(s, nil)
				convey.So(snap.Session.Kind, convey.ShouldEqual, model.SessionUnknown)
				convey.So(snap.Session.TrackName, convey.ShouldEqual, "Unknown Track")
				convey.So(snap.Session.TotalLaps, convey.ShouldEqual, 0)
				convey.So(snap.Session.Flag, convey.ShouldEqual, model.FlagNone)
				convey.So(snap.Session.TimeRemaining, convey.ShouldEqual, 0)
			})
		})
	})
}

func TestLMUStandings(t *testing.T) {
	convey.Convey("Given the lmu adapter", t, func() {
		a := lmu(t)
		s := object(t, `{"session":"RACE1","numberOfVehicles":0}`)

		convey.Convey("When a vehicle has unset best lap and a fuel reading", func() {
			vs := objects(t, `[{"position":1,"slotID":4,"bestLapTime":-1,"lastLapTime":95.123,"fuelFraction":0.42,
				"pitting":false,"inGarageStall":false,"finishStatus":"FSTAT_NONE","carClass":"Hyper",
				"vehicleName":"Aston Martin THOR Team 2025 #007:EC","carNumber":"","penalties":0}]`)
			d := a.Normalize(s, vs).Standings[0]

			convey.Convey("Then it is normalized", func() {
				convey.So(d.BestLapTime, convey.ShouldBeNil)
				convey.So(*d.LastLapTime, convey.ShouldEqual, 95.123)
				convey.So(*d.Fuel, convey.ShouldAlmostEqual, 42.0, 0.0001)
				convey.So(d.Status, convey.ShouldEqual, model.Racing)
				convey.So(d.CarClass, convey.ShouldEqual, model.Hypercar)
				convey.So(d.CarNumber, convey.ShouldEqual, "007")
				convey.So(d.CarName, convey.ShouldEqual, "Aston Martin THOR Team 2025")
				convey.So(d.TyreCompound, convey.ShouldEqual, model.TyreUnknown)
				convey.So(d.Penalties, convey.ShouldNotBeNil)
				convey.So(d.Penalties, convey.ShouldBeEmpty)
				convey.So(d.SlotID, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When lap, gap and sector values are zero or negative", func() {
			vs := objects(t, `[{"position":1,"lastLapTime":0,"bestLapTime":0,"timeBehindLeader":0,"timeBehindNext":-2,
				"currentSectorTime1":31.5,"currentSectorTime2":0,"bestSectorTime1":-1,"bestSectorTime2":29.8}]`)
			d := a.Normalize(s, vs).Standings[0]

			convey.Convey("Then they are absent, independently per sector", func() {
				convey.So(d.LastLapTime, convey.ShouldBeNil)
				convey.So(d.BestLapTime, convey.ShouldBeNil)
				convey.So(d.GapToLeader, convey.ShouldBeNil)
				convey.So(d.IntervalToAhead, convey.ShouldBeNil)
				convey.So(*d.CurrentSectors.Sector1, convey.ShouldEqual, 31.5)
				convey.So(d.CurrentSectors.Sector2, convey.ShouldBeNil)
				convey.So(d.CurrentSectors.Sector3, convey.ShouldBeNil)
				convey.So(d.BestSectors.Sector1, convey.ShouldBeNil)
				convey.So(*d.BestSectors.Sector2, convey.ShouldEqual, 29.8)
			})
		})

		convey.Convey("When a vehicle is in the garage and pitting", func() {
			vs := objects(t, `[{"position":1,"inGarageStall":true,"pitting":true,"finishStatus":"FSTAT_NONE"}]`)

			convey.Convey("Then the garage wins and it is RETIRED", func() {
				convey.So(a.Normalize(s, vs).Standings[0].Status, convey.ShouldEqual, model.Retired)
			})
		})

		convey.Convey("When finish flags are combined with other states", func() {
			vs := objects(t, `[
				{"position":1,"finishStatus":"FSTAT_DQ","inGarageStall":true},
				{"position":2,"finishStatus":"fstat_dnf","pitting":true},
				{"position":3,"finishStatus":"FSTAT_FINISHED","inGarageStall":true},
				{"position":4,"pitting":true},
				{"position":5,"finishStatus":"FSTAT_SOMETHING"}]`)
			standings := a.Normalize(s, vs).Standings

			convey.Convey("Then the first matching rule wins", func() {
				convey.So(standings[0].Status, convey.ShouldEqual, model.Disqualified)
				convey.So(standings[1].Status, convey.ShouldEqual, model.Retired)
				convey.So(standings[2].Status, convey.ShouldEqual, model.Finished)
				convey.So(standings[3].Status, convey.ShouldEqual, model.Pitting)
				convey.So(standings[4].Status, convey.ShouldEqual, model.Racing)
			})
		})

		convey.Convey("When a vehicle reports pending penalties", func() {
			vs := objects(t, `[{"position":1,"penalties":3}]`)
			penalties := a.Normalize(s, vs).Standings[0].Penalties

			convey.Convey("Then that many placeholder penalties are created", func() {
				convey.So(penalties, convey.ShouldHaveLength, 3)
				for _, p := range penalties {
					convey.So(p, convey.ShouldResemble, model.Penalty{Kind: model.TimePenalty, Time: 0, Reason: "pending"})
				}
			})
		})

		convey.Convey("When fuel is missing or nonsense", func() {
			vs := objects(t, `[{"position":1},{"position":2,"fuelFraction":-0.1},{"position":3,"fuelFraction":1.7}]`)
			standings := a.Normalize(s, vs).Standings

			convey.Convey("Then it is unknown or clamped, never zero", func() {
				convey.So(standings[0].Fuel, convey.ShouldBeNil)
				convey.So(standings[1].Fuel, convey.ShouldBeNil)
				convey.So(*standings[2].Fuel, convey.ShouldEqual, 100)
			})
		})

		convey.Convey("When car numbers need recovering", func() {
			vs := objects(t, `[
				{"position":1,"carNumber":" 51 ","vehicleName":"Ferrari 499P #50:LM"},
				{"position":2,"carNumber":"","vehicleName":"Porsche 963 #6"},
				{"position":3,"slotID":12,"vehicleName":"Oreca 07"}]`)
			standings := a.Normalize(s, vs).Standings

			convey.Convey("Then explicit, name token and slot id are used in that order", func() {
				convey.So(standings[0].CarNumber, convey.ShouldEqual, "51")
				convey.So(standings[0].CarName, convey.ShouldEqual, "Ferrari 499P")
				convey.So(standings[1].CarNumber, convey.ShouldEqual, "6")
				convey.So(standings[1].CarName, convey.ShouldEqual, "Porsche 963")
				convey.So(standings[2].CarNumber, convey.ShouldEqual, "12")
				convey.So(standings[2].CarName, convey.ShouldEqual, "Oreca 07")
			})
		})

		convey.Convey("When car classes vary", func() {
			cases := map[string]model.CarClass{
				"Hyper":     model.Hypercar,
				"LMH":       model.Hypercar,
				"lmp2":      model.LMP2,
				"LMP3":      model.LMP3,
				"GT3":       model.LMGT3,
				"LMGT3":     model.LMGT3,
				"GTE":       model.GTE,
				"LMP2_ELMS": model.LMP2,
				"Formula":   model.ClassUnknown,
				"":          model.ClassUnknown,
			}
			for class, want := range cases {
				snap := a.Normalize(s, []raw.Object{{"position": 1.0, "carClass": class}})
				convey.So(snap.Standings[0].CarClass, convey.ShouldEqual, want)
			}
		})

		convey.Convey("When the grid arrives out of order with mixed classes", func() {
			vs := objects(t, `[
				{"position":3,"slotID":3,"carClass":"GT3","lapsCompleted":10,"inGarageStall":true},
				{"position":1,"slotID":1,"carClass":"Hyper","lapsCompleted":12},
				{"position":0,"slotID":9,"carClass":"GT3","lapsCompleted":0},
				{"position":2,"slotID":2,"carClass":"Hyper","lapsCompleted":11,"finishStatus":"FSTAT_DNF"},
				{"position":4,"slotID":4,"carClass":"GT3","lapsCompleted":8}]`)
			snap := a.Normalize(s, vs)

			convey.Convey("Then positions are dense and ordered", func() {
				slots := []int{}
				for i, d := range snap.Standings {
					convey.So(d.Position, convey.ShouldEqual, i+1)
					slots = append(slots, d.SlotID)
				}
				convey.So(slots, convey.ShouldResemble, []int{1, 2, 3, 4, 9})
			})

			convey.Convey("Then the current lap follows the leader", func() {
				convey.So(snap.Session.CurrentLap, convey.ShouldEqual, 13)
			})

			convey.Convey("Then cars on track exclude retired and garaged cars", func() {
				convey.So(snap.Session.NumCars, convey.ShouldEqual, 5)
				convey.So(snap.Session.NumCarsOnTrack, convey.ShouldEqual, 3)
				convey.So(snap.Session.Active, convey.ShouldBeTrue)
			})

			convey.Convey("Then laps down are counted against the class leader", func() {
				convey.So(snap.Standings[0].LapsDown, convey.ShouldEqual, 0)
				convey.So(snap.Standings[1].LapsDown, convey.ShouldEqual, 1)
				convey.So(snap.Standings[2].LapsDown, convey.ShouldEqual, 0)
				convey.So(snap.Standings[3].LapsDown, convey.ShouldEqual, 2)
				convey.So(snap.Standings[4].LapsDown, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When the player or focused car is present", func() {
			vs := objects(t, `[{"position":1,"player":true},{"position":2,"hasFocus":true},{"position":3}]`)
			standings := a.Normalize(s, vs).Standings

			convey.Convey("Then it is flagged", func() {
				convey.So(standings[0].IsPlayer, convey.ShouldBeTrue)
				convey.So(standings[1].IsPlayer, convey.ShouldBeTrue)
				convey.So(standings[2].IsPlayer, convey.ShouldBeFalse)
			})
		})
	})
}

func TestRF2(t *testing.T) {
	convey.Convey("Given the rf2 adapter", t, func() {
		a := rf2(t)

		convey.Convey("When session codes are mapped", func() {
			cases := map[float64]model.SessionKind{
				0:  model.Practice,
				3:  model.Practice,
				5:  model.Qualifying,
				9:  model.Warmup,
				10: model.Race,
				13: model.Race,
				14: model.SessionUnknown,
				-1: model.SessionUnknown,
			}
			for code, want := range cases {
				snap := a.Normalize(raw.Object{"session": code}, nil)
				convey.So(snap.Session.Kind, convey.ShouldEqual, want)
			}
		})

		convey.Convey("When the session uses the rF2 lap sentinel and end time", func() {
			snap := a.Normalize(object(t, `{"session":10,"maximumLaps":2147483647,"currentEventTime":500,"endEventTime":1400}`), nil)

			convey.Convey("Then laps are unlimited and remaining time is end minus current", func() {
				convey.So(snap.Session.TotalLaps, convey.ShouldEqual, 0)
				convey.So(snap.Session.TimeRemaining, convey.ShouldEqual, 900)
			})
		})

		convey.Convey("When flag codes are mapped", func() {
			green := a.Normalize(object(t, `{"yellowFlagState":0,"sectorFlag":[0,0,0]}`), nil)
			sector := a.Normalize(object(t, `{"yellowFlagState":0,"sectorFlag":[0,1,0]}`), nil)
			fcy := a.Normalize(object(t, `{"yellowFlagState":3}`), nil)
			unknown := a.Normalize(object(t, `{"yellowFlagState":42}`), nil)
			over := a.Normalize(object(t, `{"yellowFlagState":1,"gamePhase":8}`), nil)

			convey.Convey("Then the table and overrides apply", func() {
				convey.So(green.Session.Flag, convey.ShouldEqual, model.FlagGreen)
				convey.So(sector.Session.Flag, convey.ShouldEqual, model.FlagYellow)
				convey.So(fcy.Session.Flag, convey.ShouldEqual, model.FlagFullCourseYellow)
				convey.So(unknown.Session.Flag, convey.ShouldEqual, model.FlagGreen)
				convey.So(over.Session.Flag, convey.ShouldEqual, model.FlagChequered)
			})
		})

		convey.Convey("When a vehicle reports cumulative sectors and numeric finish codes", func() {
			vs := objects(t, `[
				{"position":1,"slotID":7,"bestLapTime":100,"bestLapSectorTime1":30,"bestLapSectorTime2":65,
				 "currentSectorTime1":31,"currentSectorTime2":-1,"finishStatus":0,"penalties":2,"fuelFraction":0.5},
				{"position":2,"finishStatus":3},
				{"position":3,"finishStatus":2},
				{"position":4,"finishStatus":1}]`)
			standings := a.Normalize(object(t, `{"session":10}`), vs).Standings

			convey.Convey("Then sectors are split into durations", func() {
				d := standings[0]
				convey.So(*d.BestSectors.Sector1, convey.ShouldEqual, 30)
				convey.So(*d.BestSectors.Sector2, convey.ShouldEqual, 35)
				convey.So(*d.BestSectors.Sector3, convey.ShouldEqual, 35)
				convey.So(*d.CurrentSectors.Sector1, convey.ShouldEqual, 31)
				convey.So(d.CurrentSectors.Sector2, convey.ShouldBeNil)
				convey.So(d.CurrentSectors.Sector3, convey.ShouldBeNil)
			})

			convey.Convey("Then penalties are an explicit empty list and fuel is unknown", func() {
				convey.So(standings[0].Penalties, convey.ShouldNotBeNil)
				convey.So(standings[0].Penalties, convey.ShouldBeEmpty)
				convey.So(standings[0].Fuel, convey.ShouldBeNil)
				convey.So(standings[0].CarNumber, convey.ShouldEqual, "7")
			})

			convey.Convey("Then finish codes drive the status", func() {
				convey.So(standings[1].Status, convey.ShouldEqual, model.Disqualified)
				convey.So(standings[2].Status, convey.ShouldEqual, model.Retired)
				convey.So(standings[3].Status, convey.ShouldEqual, model.Finished)
			})
		})
	})
}

func TestResolve(t *testing.T) {
	convey.Convey("Given the adapter registry", t, func() {
		convey.Convey("When detecting by the session field type", func() {
			convey.So(adapter.Detect(raw.Object{"session": "RACE1"}).Name(), convey.ShouldEqual, adapter.LMU)
			convey.So(adapter.Detect(raw.Object{"session": 10.0}).Name(), convey.ShouldEqual, adapter.RF2)
			convey.So(adapter.Detect(raw.Object{}).Name(), convey.ShouldEqual, adapter.Default)
		})

		convey.Convey("When resolving configured names", func() {
			a, err := adapter.Resolve("RF2", raw.Object{"session": "RACE1"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(a.Name(), convey.ShouldEqual, adapter.RF2)

			a, err = adapter.Resolve(adapter.Auto, raw.Object{"session": 10.0})
			convey.So(err, convey.ShouldBeNil)
			convey.So(a.Name(), convey.ShouldEqual, adapter.RF2)

			_, err = adapter.Resolve("ams2", nil)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(adapter.Valid("ams2"), convey.ShouldBeFalse)
			convey.So(adapter.Valid(""), convey.ShouldBeTrue)
		})

		convey.Convey("When listing names", func() {
			convey.So(adapter.Names(), convey.ShouldContain, adapter.LMU)
			convey.So(adapter.Names(), convey.ShouldContain, adapter.RF2)
		})
	})
}
