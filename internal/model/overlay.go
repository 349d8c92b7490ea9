package model

// IsOverlaySized returns true if the candidate box is meaningfully smaller
// than the viewport (under 80% in at least one dimension), suggesting a
// dialog rather than the main content area.
func IsOverlaySized(candidate, viewport Box) bool {
	if viewport.Width == 0 || viewport.Height == 0 || candidate.Width == 0 || candidate.Height == 0 {
		return false
	}
	return candidate.Width < viewport.Width*0.8 || candidate.Height < viewport.Height*0.8
}

// IsCentered returns true if the candidate's center is within a quarter of
// the viewport size from the viewport's center.
func IsCentered(candidate, viewport Box) bool {
	vc := viewport.Center()
	cc := candidate.Center()
	dx, dy := cc.X-vc.X, cc.Y-vc.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx <= viewport.Width/4 && dy <= viewport.Height/4
}

// modalRoles are ARIA roles that always mark a modal-like node.
var modalRoles = map[string]bool{
	"dialog":      true,
	"alertdialog": true,
}

// LooksModal classifies a newly added node as modal-like. Detection, in order:
//  1. Tag or role: <dialog>, role=dialog/alertdialog, aria-modal=true.
//  2. Naming: a class or id mentioning modal/dialog/popup/overlay.
//  3. Geometry: a fixed-position box smaller than and centered in the viewport.
func LooksModal(tag string, attrs map[string]string, position string, box, viewport Box) bool {
	if tag == "dialog" || modalRoles[attrs["role"]] || attrs["aria-modal"] == "true" {
		return true
	}
	if NameHints(attrs, "modal", "dialog", "popup", "overlay", "lightbox") {
		return true
	}
	if position == "fixed" && IsOverlaySized(box, viewport) && IsCentered(box, viewport) {
		return true
	}
	return false
}
