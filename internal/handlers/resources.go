package handlers

import (
	"errors"
	"net/http"

	"github.com/bhaijames252-sketch/billbillbill/internal/store"
	api "github.com/bhaijames252-sketch/billbillbill/pkg/api/billing"
	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
	"github.com/bhaijames252-sketch/billbillbill/pkg/middleware"
)

// Resource tracking endpoints. Creates are idempotent on resource_id:
// a duplicate create returns 409 and changes nothing.

// CreateCompute registers a compute instance
func CreateCompute(c middleware.Context) {
	var req api.ComputeCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "resource_id and user_id are required"})
		return
	}

	resource, err := resources.CreateCompute(c.Request.Context(), req.ResourceID, req.UserID, req.Flavor)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.resourceOp("compute", "create", "conflict")
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "resource already exists"})
			return
		}
		logger.WithFields(logging.Fields{
			"error":       err,
			"resource_id": req.ResourceID,
		}).Error("Failed to create compute resource")
		metrics.resourceOp("compute", "create", "error")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to create resource"})
		return
	}

	metrics.resourceOp("compute", "create", "success")
	c.JSON(http.StatusCreated, resource)
}

// GetCompute returns one compute resource with its event log
func GetCompute(c middleware.Context) {
	resource, err := resources.GetCompute(c.Request.Context(), c.Param("resource_id"))
	if err != nil {
		respondResourceError(c, err, "compute")
		return
	}
	c.JSON(http.StatusOK, resource)
}

// GetUserComputes lists a user's compute resources. Deleted resources are
// included only with ?include_deleted=true.
func GetUserComputes(c middleware.Context) {
	includeDeleted := c.Query("include_deleted") == "true"
	list, err := resources.GetUserComputes(c.Request.Context(), c.Param("user_id"), includeDeleted)
	if err != nil {
		respondResourceError(c, err, "compute")
		return
	}
	c.JSON(http.StatusOK, list)
}

// UpdateCompute patches a compute's state and/or flavor
func UpdateCompute(c middleware.Context) {
	var req api.ComputeUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}

	resource, err := resources.UpdateCompute(c.Request.Context(), c.Param("resource_id"), req.State, req.Flavor)
	if err != nil {
		metrics.resourceOp("compute", "update", "error")
		respondResourceError(c, err, "compute")
		return
	}
	metrics.resourceOp("compute", "update", "success")
	c.JSON(http.StatusOK, resource)
}

// DeleteCompute marks a compute deleted. Deleting an already-deleted
// resource is a no-op success.
func DeleteCompute(c middleware.Context) {
	resource, err := resources.DeleteCompute(c.Request.Context(), c.Param("resource_id"))
	if err != nil {
		metrics.resourceOp("compute", "delete", "error")
		respondResourceError(c, err, "compute")
		return
	}
	metrics.resourceOp("compute", "delete", "success")
	c.JSON(http.StatusOK, resource)
}

// CreateDisk registers a block volume
func CreateDisk(c middleware.Context) {
	var req api.DiskCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "resource_id, user_id, and size_gb are required"})
		return
	}

	resource, err := resources.CreateDisk(c.Request.Context(), req.ResourceID, req.UserID, req.SizeGB, req.AttachedTo)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.resourceOp("disk", "create", "conflict")
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "resource already exists"})
			return
		}
		logger.WithFields(logging.Fields{
			"error":       err,
			"resource_id": req.ResourceID,
		}).Error("Failed to create disk resource")
		metrics.resourceOp("disk", "create", "error")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to create resource"})
		return
	}

	metrics.resourceOp("disk", "create", "success")
	c.JSON(http.StatusCreated, resource)
}

// GetDisk returns one disk resource
func GetDisk(c middleware.Context) {
	resource, err := resources.GetDisk(c.Request.Context(), c.Param("resource_id"))
	if err != nil {
		respondResourceError(c, err, "disk")
		return
	}
	c.JSON(http.StatusOK, resource)
}

// GetUserDisks lists a user's disks
func GetUserDisks(c middleware.Context) {
	includeDeleted := c.Query("include_deleted") == "true"
	list, err := resources.GetUserDisks(c.Request.Context(), c.Param("user_id"), includeDeleted)
	if err != nil {
		respondResourceError(c, err, "disk")
		return
	}
	c.JSON(http.StatusOK, list)
}

// UpdateDisk patches a disk's state, size, or attachment
func UpdateDisk(c middleware.Context) {
	var req api.DiskUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}

	resource, err := resources.UpdateDisk(c.Request.Context(), c.Param("resource_id"), req.State, req.SizeGB, req.AttachedTo)
	if err != nil {
		metrics.resourceOp("disk", "update", "error")
		respondResourceError(c, err, "disk")
		return
	}
	metrics.resourceOp("disk", "update", "success")
	c.JSON(http.StatusOK, resource)
}

// DeleteDisk marks a disk deleted
func DeleteDisk(c middleware.Context) {
	resource, err := resources.DeleteDisk(c.Request.Context(), c.Param("resource_id"))
	if err != nil {
		metrics.resourceOp("disk", "delete", "error")
		respondResourceError(c, err, "disk")
		return
	}
	metrics.resourceOp("disk", "delete", "success")
	c.JSON(http.StatusOK, resource)
}

// CreateFloatingIP registers a floating IP allocation
func CreateFloatingIP(c middleware.Context) {
	var req api.FloatingIPCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "resource_id, user_id, and ip_address are required"})
		return
	}

	resource, err := resources.CreateFloatingIP(c.Request.Context(), req.ResourceID, req.UserID, req.IPAddress, req.PortID, req.AttachedTo)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.resourceOp("floating_ip", "create", "conflict")
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "resource already exists"})
			return
		}
		logger.WithFields(logging.Fields{
			"error":       err,
			"resource_id": req.ResourceID,
		}).Error("Failed to create floating IP resource")
		metrics.resourceOp("floating_ip", "create", "error")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to create resource"})
		return
	}

	metrics.resourceOp("floating_ip", "create", "success")
	c.JSON(http.StatusCreated, resource)
}

// GetFloatingIP returns one floating IP resource
func GetFloatingIP(c middleware.Context) {
	resource, err := resources.GetFloatingIP(c.Request.Context(), c.Param("resource_id"))
	if err != nil {
		respondResourceError(c, err, "floating_ip")
		return
	}
	c.JSON(http.StatusOK, resource)
}

// GetUserFloatingIPs lists a user's floating IPs
func GetUserFloatingIPs(c middleware.Context) {
	includeReleased := c.Query("include_released") == "true"
	list, err := resources.GetUserFloatingIPs(c.Request.Context(), c.Param("user_id"), includeReleased)
	if err != nil {
		respondResourceError(c, err, "floating_ip")
		return
	}
	c.JSON(http.StatusOK, list)
}

// UpdateFloatingIP patches a floating IP's port or attachment
func UpdateFloatingIP(c middleware.Context) {
	var req struct {
		PortID     *string `json:"port_id,omitempty"`
		AttachedTo *string `json:"attached_to,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}

	resource, err := resources.UpdateFloatingIP(c.Request.Context(), c.Param("resource_id"), req.PortID, req.AttachedTo)
	if err != nil {
		metrics.resourceOp("floating_ip", "update", "error")
		respondResourceError(c, err, "floating_ip")
		return
	}
	metrics.resourceOp("floating_ip", "update", "success")
	c.JSON(http.StatusOK, resource)
}

// ReleaseFloatingIP marks a floating IP released
func ReleaseFloatingIP(c middleware.Context) {
	resource, err := resources.ReleaseFloatingIP(c.Request.Context(), c.Param("resource_id"))
	if err != nil {
		metrics.resourceOp("floating_ip", "delete", "error")
		respondResourceError(c, err, "floating_ip")
		return
	}
	metrics.resourceOp("floating_ip", "delete", "success")
	c.JSON(http.StatusOK, resource)
}

func respondResourceError(c middleware.Context, err error, resourceType string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "resource not found"})
		return
	}
	logger.WithFields(logging.Fields{
		"error":         err,
		"resource_type": resourceType,
		"path":          c.Request.URL.Path,
	}).Error("Resource operation failed")
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
}
