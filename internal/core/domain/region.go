package domain

import (
	"fmt"
	"strings"

	"github.com/ctessum/geom"
)

// RegionNode is one administrative unit in the region tree. A node owns its
// children and assets exclusively; the parent is referenced by id only.
type RegionNode struct {
	ID       string         `json:"id" yaml:"id"`
	Level    int            `json:"level" yaml:"level"`
	ParentID string         `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Geometry geom.Polygonal `json:"-" yaml:"-"`
	CRS      string         `json:"crs,omitempty" yaml:"crs,omitempty"`
	Assets   []GeoAsset     `json:"assets" yaml:"assets"`
	Children []*RegionNode  `json:"children,omitempty" yaml:"children,omitempty"`
}

// NewRootRegion creates a level 0 node holding externally supplied assets.
func NewRootRegion(id string, assets ...GeoAsset) *RegionNode {
	root := &RegionNode{ID: id, Level: 0}
	for _, a := range assets {
		a.Level = 0
		root.Assets = append(root.Assets, a)
	}
	return root
}

// NewChild creates a child of n and appends it to n.Children.
func (n *RegionNode) NewChild(id string, geometry geom.Polygonal, crs string) (*RegionNode, error) {
	if geometry == nil {
		return nil, fmt.Errorf("region %s: %w", id, ErrInvalidGeometry)
	}
	if strings.TrimSpace(crs) == "" {
		return nil, fmt.Errorf("region %s: %w", id, ErrUndefinedCRS)
	}

	child := &RegionNode{
		ID:       id,
		Level:    n.Level + 1,
		ParentID: n.ID,
		Geometry: geometry,
		CRS:      crs,
	}
	n.Children = append(n.Children, child)
	return child, nil
}

// AttachAsset adds a to the node. The asset level must equal the node level.
func (n *RegionNode) AttachAsset(a GeoAsset) error {
	if a.Level != n.Level {
		return fmt.Errorf("asset %s level %d on region %s level %d: %w", a.Name, a.Level, n.ID, n.Level, ErrInvalidLevel)
	}
	n.Assets = append(n.Assets, a)
	return nil
}

func (n *RegionNode) Asset(name string) (GeoAsset, bool) {
	for _, a := range n.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return GeoAsset{}, false
}

func (n *RegionNode) HasChildren() bool {
	return len(n.Children) > 0
}

// Walk visits n and its descendants depth first, parents before children.
func (n *RegionNode) Walk(fn func(node *RegionNode) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *RegionNode) Count() int {
	total := 0
	_ = n.Walk(func(*RegionNode) error {
		total++
		return nil
	})
	return total
}

// ValidateTree checks the structural invariants of the subtree rooted at n.
func ValidateTree(n *RegionNode) error {
	for _, c := range n.Children {
		if c.Level != n.Level+1 {
			return fmt.Errorf("region %s: %w", c.ID, ErrInvalidLevel)
		}
		if c.ParentID != n.ID {
			return fmt.Errorf("region %s names parent %q, expected %q", c.ID, c.ParentID, n.ID)
		}
		if c.Geometry == nil {
			return fmt.Errorf("region %s: %w", c.ID, ErrInvalidGeometry)
		}
		if strings.TrimSpace(c.CRS) == "" {
			return fmt.Errorf("region %s: %w", c.ID, ErrUndefinedCRS)
		}
		for _, a := range c.Assets {
			if _, ok := n.Asset(a.Name); !ok {
				return fmt.Errorf("region %s asset %s: %w", c.ID, a.Name, ErrOrphanAsset)
			}
			if a.Level != c.Level {
				return fmt.Errorf("region %s asset %s: %w", c.ID, a.Name, ErrInvalidLevel)
			}
		}
		if err := ValidateTree(c); err != nil {
			return err
		}
	}
	return nil
}
