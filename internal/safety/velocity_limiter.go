// Package safety holds the one safety primitive the control core still
// needs: clamping operator-issued drive commands to configured maximum
// velocities. E-Stop and the timeout watchdog from the reference gateway
// are not part of this design (there is no hardware emergency-stop line to
// the single delivery robot) and are not carried forward.
package safety

import (
	"math"

	"go.uber.org/zap"
)

// VelocityLimiter clamps DriveCommand velocities to configured maximums.
type VelocityLimiter struct {
	maxLinearVel  float64
	maxAngularVel float64
	logger        *zap.Logger
}

func NewVelocityLimiter(maxLinear, maxAngular float64, logger *zap.Logger) *VelocityLimiter {
	return &VelocityLimiter{
		maxLinearVel:  maxLinear,
		maxAngularVel: maxAngular,
		logger:        logger,
	}
}

// LimitResult carries the clamped values and whether clamping occurred.
type LimitResult struct {
	LinearVelocity  float64
	AngularVelocity float64
	Clamped         bool
}

// Limit clamps a single-axis linear velocity and an angular velocity to the
// configured maximums, sign-preserving.
func (v *VelocityLimiter) Limit(linear, angular float64) LimitResult {
	result := LimitResult{LinearVelocity: linear, AngularVelocity: angular}

	if math.Abs(linear) > v.maxLinearVel {
		if linear > 0 {
			result.LinearVelocity = v.maxLinearVel
		} else {
			result.LinearVelocity = -v.maxLinearVel
		}
		result.Clamped = true
	}

	if math.Abs(angular) > v.maxAngularVel {
		if angular > 0 {
			result.AngularVelocity = v.maxAngularVel
		} else {
			result.AngularVelocity = -v.maxAngularVel
		}
		result.Clamped = true
	}

	if result.Clamped && v.logger != nil {
		v.logger.Debug("velocity clamped",
			zap.Float64("req_linear", linear),
			zap.Float64("req_angular", angular),
			zap.Float64("out_linear", result.LinearVelocity),
			zap.Float64("out_angular", result.AngularVelocity),
		)
	}

	return result
}
