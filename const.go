// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.15
//

package navqc

import "time"

const (
	FeetPerMeter     = 3.280839895013123 // International foot
	MetersPerFoot    = 0.3048            // International foot
	MinWindow        = 3                 // Smallest smoothing window
	ChangeEps        = 1e-9              // A smoothed value moved by less than this is not a modification
	SegmentJoinTol   = 1e-6              // Allowed gap between consecutive route segments
	DefaultTideGap   = 5 * time.Minute   // Longest tolerated hole in a tide curve
	DefaultMinSpline = 100               // Floor on spline output count
	MaxTension       = 5.0               // Upper clamp of spline tension
	MaxMultiplier    = 50                // Upper clamp of spline output multiplier
	GeoMaxLon        = 180.0             // Longitude bound for the geographic heuristic
	GeoMaxLat        = 90.0              // Latitude bound for the geographic heuristic
	MagRatioMin      = 0.01              // Lower survey/route magnitude ratio before a soft warning
	MagRatioMax      = 100.0             // Upper survey/route magnitude ratio before a soft warning
	OverlapBuffer    = 10.0              // Route bbox is grown by this many route widths for the overlap test
)
